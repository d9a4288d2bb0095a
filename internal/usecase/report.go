package usecase

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/fairyhunter13/lawbot/internal/domain"
)

// PurgeDays is the age threshold of the admin purge action.
const PurgeDays = 30

// Statistics is the admin dashboard summary.
type Statistics struct {
	Total     int64   `json:"total_messages"`
	User      int64   `json:"user_messages"`
	Assistant int64   `json:"assistant_messages"`
	Today     int64   `json:"today_messages"`
	AvgLength float64 `json:"avg_message_length"`
	// Running counters from the stats recorder; empty without Redis.
	Running domain.StatsSnapshot `json:"running"`
}

// Analytics is the admin analytics payload.
type Analytics struct {
	ByDay  []domain.DayCount  `json:"messages_by_day"`
	ByHour []domain.HourCount `json:"messages_by_hour"`
}

// ReportService builds the admin reports.
type ReportService struct {
	Repo  domain.MessageReporting
	List  domain.MessageRepository
	Stats domain.StatsRecorder
	now   func() time.Time
}

// NewReportService constructs a ReportService.
func NewReportService(rep domain.MessageReporting, list domain.MessageRepository, stats domain.StatsRecorder) ReportService {
	return ReportService{Repo: rep, List: list, Stats: stats, now: time.Now}
}

func (s ReportService) clock() time.Time {
	if s.now == nil {
		return time.Now().UTC()
	}
	return s.now().UTC()
}

// Statistics gathers the dashboard numbers.
func (s ReportService) Statistics(ctx domain.Context) (Statistics, error) {
	var st Statistics
	var err error
	if st.Total, err = s.Repo.Count(ctx); err != nil {
		return Statistics{}, fmt.Errorf("op=report.Statistics: %w", err)
	}
	if st.User, err = s.Repo.CountByRole(ctx, domain.RoleUser); err != nil {
		return Statistics{}, fmt.Errorf("op=report.Statistics: %w", err)
	}
	if st.Assistant, err = s.Repo.CountByRole(ctx, domain.RoleAssistant); err != nil {
		return Statistics{}, fmt.Errorf("op=report.Statistics: %w", err)
	}
	now := s.clock()
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if st.Today, err = s.Repo.CountSince(ctx, midnight); err != nil {
		return Statistics{}, fmt.Errorf("op=report.Statistics: %w", err)
	}
	if st.AvgLength, err = s.Repo.AvgLength(ctx); err != nil {
		return Statistics{}, fmt.Errorf("op=report.Statistics: %w", err)
	}
	if s.Stats != nil {
		snap, err := s.Stats.Snapshot(ctx)
		if err != nil {
			slog.Warn("running stats unavailable", slog.Any("error", err))
		} else {
			st.Running = snap
		}
	}
	return st, nil
}

// Analytics returns per-day counts for the last 30 days and per-hour counts
// over the same window.
func (s ReportService) Analytics(ctx domain.Context) (Analytics, error) {
	byDay, err := s.Repo.CountByDay(ctx, PurgeDays)
	if err != nil {
		return Analytics{}, fmt.Errorf("op=report.Analytics: %w", err)
	}
	byHour, err := s.Repo.CountByHour(ctx, s.clock().AddDate(0, 0, -PurgeDays))
	if err != nil {
		return Analytics{}, fmt.Errorf("op=report.Analytics: %w", err)
	}
	return Analytics{ByDay: byDay, ByHour: byHour}, nil
}

// ExportCSV writes every message, oldest first, as CSV with the columns
// ID, Role, Content, Created At, Length.
func (s ReportService) ExportCSV(ctx domain.Context, w io.Writer) (int, error) {
	msgs, err := s.List.List(ctx, domain.MessageFilter{})
	if err != nil {
		return 0, fmt.Errorf("op=report.ExportCSV: %w", err)
	}
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"ID", "Role", "Content", "Created At", "Length"}); err != nil {
		return 0, fmt.Errorf("op=report.ExportCSV: %w", err)
	}
	for _, m := range msgs {
		row := []string{
			strconv.FormatInt(m.ID, 10),
			string(m.Role),
			m.Content,
			m.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			strconv.Itoa(len([]rune(m.Content))),
		}
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("op=report.ExportCSV: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("op=report.ExportCSV: %w", err)
	}
	return len(msgs), nil
}

// Purge deletes messages older than PurgeDays.
func (s ReportService) Purge(ctx domain.Context) (int64, error) {
	cutoff := s.clock().AddDate(0, 0, -PurgeDays)
	n, err := s.Repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("op=report.Purge: %w", err)
	}
	slog.Info("old messages purged", slog.Int64("deleted", n), slog.Time("cutoff", cutoff))
	return n, nil
}
