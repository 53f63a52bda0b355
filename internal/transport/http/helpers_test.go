package httpserver

import (
	"io"
	"log/slog"
	"strconv"

	"github.com/Skotchmaster/tienda/internal/logging"
)

func testLogger() *slog.Logger {
	return logging.NewWithWriter(io.Discard, "error")
}

func itoa(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}
