// Package http contains the chi HTTP handlers for the licensing API:
// license CRUD and validation, allocation, team management, the XLSX
// report export, and health. Every mutating endpoint consults the
// access gate before touching a store; errors render as RFC 7807
// problem documents.
package http
