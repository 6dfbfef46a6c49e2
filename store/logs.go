package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-bookstore-crawler/models"
)

// InsertRequestLog records one middleware log entry.
func (s *Store) InsertRequestLog(ctx context.Context, entry models.RequestLog) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO request_logs (
			timestamp, ip_address, isp, country, region, city,
			user, is_authenticated, method, path, query_params,
			user_agent, status_code, process_time
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		entry.Timestamp, entry.IPAddress, entry.ISP, entry.Country, entry.Region, entry.City,
		entry.User, entry.IsAuthenticated, entry.Method, entry.Path, entry.QueryParams,
		entry.UserAgent, entry.StatusCode, entry.ProcessTime,
	)
	if err != nil {
		return fmt.Errorf("insert request log: %w", err)
	}
	return nil
}

// LogFilter narrows request-log queries.
type LogFilter struct {
	IsAuthenticated *bool
	User            string
	Page            int
	Limit           int
}

// ListRequestLogs returns one page of request logs, newest first, plus
// the total match count.
func (s *Store) ListRequestLogs(ctx context.Context, filter LogFilter) ([]models.RequestLog, int, error) {
	where := []string{"1 = 1"}
	args := []any{}

	if filter.IsAuthenticated != nil {
		where = append(where, "is_authenticated = ?")
		args = append(args, *filter.IsAuthenticated)
	}
	if filter.User != "" {
		where = append(where, "user = ?")
		args = append(args, filter.User)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM request_logs WHERE `+clause, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count request logs: %w", err)
	}

	if filter.Limit <= 0 {
		filter.Limit = 50
	}
	if filter.Page <= 0 {
		filter.Page = 1
	}
	offset := (filter.Page - 1) * filter.Limit

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, ip_address, isp, country, region, city,
			user, is_authenticated, method, path, query_params,
			user_agent, status_code, process_time
		FROM request_logs
		WHERE `+clause+`
		ORDER BY timestamp DESC
		LIMIT ? OFFSET ?
	`, append(args, filter.Limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("list request logs: %w", err)
	}
	defer rows.Close()

	var logs []models.RequestLog
	for rows.Next() {
		var entry models.RequestLog
		if err := rows.Scan(
			&entry.ID, &entry.Timestamp, &entry.IPAddress, &entry.ISP, &entry.Country,
			&entry.Region, &entry.City, &entry.User, &entry.IsAuthenticated,
			&entry.Method, &entry.Path, &entry.QueryParams, &entry.UserAgent,
			&entry.StatusCode, &entry.ProcessTime,
		); err != nil {
			return nil, 0, fmt.Errorf("scan request log: %w", err)
		}
		logs = append(logs, entry)
	}
	return logs, total, rows.Err()
}
