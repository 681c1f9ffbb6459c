package app

import (
	"os"

	"github.com/israelreshef/delivery-app-sub000/internal/logx"
)

// NewLogger returns a JSON logger on stdout at the given level.
func NewLogger(level string) logx.Logger {
	return logx.NewJSON(os.Stdout, logx.ParseLevel(level))
}
