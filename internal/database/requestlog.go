package database

import (
	"context"
	"fmt"
	"regexp"
)

var plainIP = regexp.MustCompile(`^[0-9:.]+$`)

// LogRequest appends a row to request_log. Addresses that are not plain
// IPv4/IPv6 literals are not recorded; this returns false in that case.
func (s *Store) LogRequest(ctx context.Context, ip, request string) (bool, error) {
	if !plainIP.MatchString(ip) {
		return false, nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO request_log (ip, request) VALUES (?, ?)`, ip, request,
	); err != nil {
		return false, fmt.Errorf("database: failed to log request: %w", err)
	}
	return true, nil
}
