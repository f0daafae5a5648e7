// Package control is the operator layer around the relay service.
//
// It validates the bind address and port, decides whether a failed bind is
// retried on 0.0.0.0, reports lifecycle events as log lines, and assembles
// the status shown on the console (LAN and public IP, device counts).
package control
