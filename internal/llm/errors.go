// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package llm

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// IsNetworkError classifies an external-service failure as network-class
// (timeouts, connection refused/reset, DNS) as opposed to protocol-class
// (malformed replies). The monologue loop backs off and retries on the
// network class; protocol errors log and continue.
func IsNetworkError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	// Some providers surface generic fetch failures as plain strings
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"fetch failed",
		"no such host",
		"timeout",
		"tls handshake",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}

	return false
}
