package transport

import "log/slog"

func slogUint(key string, v uint64) slog.Attr { return slog.Uint64(key, v) }
func slogStr(key string, v string) slog.Attr  { return slog.String(key, v) }
