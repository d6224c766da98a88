package logger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pterm/pterm"

	"github.com/sitegate/gatekeeper/internal/core/domain"
	"github.com/sitegate/gatekeeper/theme"
)

// StyledLogger wraps slog.Logger with Theme-aware formatting
type StyledLogger struct {
	logger *slog.Logger
	Theme  *theme.Theme
}

func NewStyledLogger(logger *slog.Logger, theme *theme.Theme) *StyledLogger {
	return &StyledLogger{
		logger: logger,
		Theme:  theme,
	}
}

func (sl *StyledLogger) Debug(msg string, args ...any) {
	sl.logger.Debug(msg, args...)
}

func (sl *StyledLogger) Info(msg string, args ...any) {
	sl.logger.Info(msg, args...)
}

func (sl *StyledLogger) Warn(msg string, args ...any) {
	sl.logger.Warn(msg, args...)
}

func (sl *StyledLogger) Error(msg string, args ...any) {
	sl.logger.Error(msg, args...)
}

func (sl *StyledLogger) InfoWithCount(msg string, count int, args ...any) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Counts}.Sprint("(", count, ")"))
	sl.logger.Info(styledMsg, args...)
}

func (sl *StyledLogger) InfoWithNumbers(msg string, numbers ...int64) {
	var formattedNums []string
	for _, num := range numbers {
		formattedNums = append(formattedNums, pterm.Style{sl.Theme.Numbers}.Sprint(num))
	}

	styledMsg := fmt.Sprintf(msg, toInterfaceSlice(formattedNums)...)
	sl.logger.Info(styledMsg)
}

// SeverityColour maps an event or rule severity onto the theme palette.
func (sl *StyledLogger) SeverityColour(severity domain.Severity) pterm.Color {
	switch severity {
	case domain.SeverityCritical:
		return sl.Theme.Critical
	case domain.SeverityHigh:
		return sl.Theme.High
	case domain.SeverityMedium:
		return sl.Theme.Medium
	default:
		return sl.Theme.Low
	}
}

// LogSecurityEvent writes a security event at a level matching its
// severity, with the client address highlighted on the terminal.
func (sl *StyledLogger) LogSecurityEvent(ctx context.Context, event domain.SecurityEvent) {
	styledMsg := fmt.Sprintf("[%s] %s from %s",
		pterm.Style{sl.SeverityColour(event.Severity)}.Sprint(event.Severity),
		event.Type,
		pterm.Style{sl.Theme.Client}.Sprint(event.IP))

	args := []any{
		"event_type", string(event.Type),
		"severity", string(event.Severity),
		"ip", event.IP,
		"request_id", event.RequestID,
	}
	for k, v := range event.Details {
		args = append(args, k, v)
	}

	switch event.Severity {
	case domain.SeverityCritical, domain.SeverityHigh:
		sl.logger.WarnContext(ctx, styledMsg, args...)
	case domain.SeverityMedium:
		sl.logger.InfoContext(ctx, styledMsg, args...)
	default:
		sl.logger.DebugContext(ctx, styledMsg, args...)
	}
}

func (sl *StyledLogger) GetUnderlying() *slog.Logger {
	return sl.logger
}

func (sl *StyledLogger) WithRequestID(requestID string) *StyledLogger {
	return sl.With("request_id", requestID)
}

func (sl *StyledLogger) With(args ...any) *StyledLogger {
	return &StyledLogger{
		logger: sl.logger.With(args...),
		Theme:  sl.Theme,
	}
}

func toInterfaceSlice(strs []string) []interface{} {
	result := make([]interface{}, len(strs))
	for i, s := range strs {
		result[i] = s
	}
	return result
}

func NewWithTheme(cfg *Config) (*slog.Logger, *StyledLogger, func(), error) {
	logger, cleanup, err := New(cfg)
	if err != nil {
		return nil, nil, nil, err
	}

	appTheme := theme.GetTheme(cfg.Theme)
	styledLogger := NewStyledLogger(logger, appTheme)

	return logger, styledLogger, cleanup, nil
}

// LogContext separates what the terminal shows from what only the log
// file should carry.
type LogContext struct {
	UserArgs     []interface{}
	DetailedArgs []interface{}
}

func (sl *StyledLogger) WarnWithContext(msg string, route string, ctx LogContext) {
	sl.logWithContext(slog.LevelWarn, msg, route, ctx)
}

func (sl *StyledLogger) ErrorWithContext(msg string, route string, ctx LogContext) {
	sl.logWithContext(slog.LevelError, msg, route, ctx)
}

func (sl *StyledLogger) logWithContext(level slog.Level, msg string, route string, ctx LogContext) {
	styledMsg := fmt.Sprintf("%s %s", msg, pterm.Style{sl.Theme.Route}.Sprint(route))
	sl.logger.Log(context.Background(), level, styledMsg, ctx.UserArgs...)

	if len(ctx.DetailedArgs) > 0 {
		allArgs := make([]interface{}, 0, len(ctx.UserArgs)+len(ctx.DetailedArgs)+2)
		allArgs = append(allArgs, "route", route)
		allArgs = append(allArgs, ctx.UserArgs...)
		allArgs = append(allArgs, ctx.DetailedArgs...)

		// file handler only, see fastMultiHandler
		detailedCtx := context.WithValue(context.Background(), DefaultDetailedCookie, true)
		sl.logger.Log(detailedCtx, level, msg, allArgs...)
	}
}
