package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// parseYAML parses the specific two-level mapping used by config.yaml
func parseYAML(r io.Reader, cfg *Config) error {
	type section int
	const (
		none section = iota
		db
		rm
		sv
		jw
		tr
		md
		lg
	)

	sections := map[string]section{
		"database": db,
		"rabbitmq": rm,
		"services": sv,
		"jwt":      jw,
		"tracking": tr,
		"media":    md,
		"logging":  lg,
	}

	scanner := bufio.NewScanner(r)
	var cur section

	lineNo := 0
	seenTop := map[section]bool{}

	for scanner.Scan() {
		lineNo++
		raw := scanner.Text()

		// strip comments
		if i := strings.IndexByte(raw, '#'); i >= 0 {
			raw = raw[:i]
		}

		line := strings.TrimRight(raw, " \t\r\n")
		if strings.TrimSpace(line) == "" {
			continue
		}

		// top-level section? (no leading spaces)
		if line[0] != ' ' && line[0] != '\t' {
			name := strings.TrimSuffix(strings.TrimSpace(line), ":")
			s, ok := sections[name]
			if !ok || !strings.HasSuffix(strings.TrimSpace(line), ":") {
				return fmt.Errorf("line %d: unknown top-level key %q", lineNo, name)
			}
			if seenTop[s] {
				return fmt.Errorf("line %d: duplicate '%s' section", lineNo, name)
			}
			seenTop[s] = true
			cur = s
			continue
		}

		// expect indented "key: value"
		if cur == none {
			return fmt.Errorf("line %d: key without a section", lineNo)
		}
		trim := strings.TrimSpace(line)
		colon := strings.IndexByte(trim, ':')
		if colon <= 0 {
			return fmt.Errorf("line %d: expected 'key: value'", lineNo)
		}
		key := strings.TrimSpace(trim[:colon])
		val := resolveScalar(trim[colon+1:])

		var err error
		switch cur {
		case db:
			switch key {
			case "host":
				cfg.Database.Host = val
			case "port":
				cfg.Database.Port, err = parseInt("database.port", val)
			case "user":
				cfg.Database.User = val
			case "password":
				cfg.Database.Password = val
			case "database":
				cfg.Database.Name = val
			default:
				return fmt.Errorf("line %d: unknown key in database: %q", lineNo, key)
			}
		case rm:
			switch key {
			case "host":
				cfg.RabbitMQ.Host = val
			case "port":
				cfg.RabbitMQ.Port, err = parseInt("rabbitmq.port", val)
			case "user":
				cfg.RabbitMQ.User = val
			case "password":
				cfg.RabbitMQ.Password = val
			default:
				return fmt.Errorf("line %d: unknown key in rabbitmq: %q", lineNo, key)
			}
		case sv:
			switch key {
			case "tracker_service":
				cfg.Services.TrackerServicePort, err = parseInt("services.tracker_service", val)
			case "device_gateway":
				cfg.Services.DeviceGatewayPort, err = parseInt("services.device_gateway", val)
			default:
				return fmt.Errorf("line %d: unknown key in services: %q", lineNo, key)
			}
		case jw:
			switch key {
			case "secret_key":
				cfg.JWT.SecretKey = val
			default:
				return fmt.Errorf("line %d: unknown key in jwt: %q", lineNo, key)
			}
		case tr:
			switch key {
			case "poll_interval_ms":
				cfg.Tracking.PollIntervalMillis, err = parseInt64("tracking.poll_interval_ms", val)
			case "time_threshold_ms":
				cfg.Tracking.TimeThresholdMillis, err = parseInt64("tracking.time_threshold_ms", val)
			case "distance_threshold_m":
				cfg.Tracking.DistanceThresholdMeters, err = parseFloat("tracking.distance_threshold_m", val)
			case "max_fix_age_ms":
				cfg.Tracking.MaxFixAgeMillis, err = parseInt64("tracking.max_fix_age_ms", val)
			case "default_latitude":
				cfg.Tracking.DefaultLatitude, err = parseFloat("tracking.default_latitude", val)
			case "default_longitude":
				cfg.Tracking.DefaultLongitude, err = parseFloat("tracking.default_longitude", val)
			default:
				return fmt.Errorf("line %d: unknown key in tracking: %q", lineNo, key)
			}
		case md:
			switch key {
			case "dir":
				cfg.Media.Dir = val
			case "base_url":
				cfg.Media.BaseURL = val
			default:
				return fmt.Errorf("line %d: unknown key in media: %q", lineNo, key)
			}
		case lg:
			switch key {
			case "level":
				cfg.Logging.Level = val
			default:
				return fmt.Errorf("line %d: unknown key in logging: %q", lineNo, key)
			}
		}
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

func parseInt(name, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be int: %v", name, err)
	}
	return n, nil
}

func parseInt64(name, val string) (int64, error) {
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be int: %v", name, err)
	}
	return n, nil
}

func parseFloat(name, val string) (float64, error) {
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %v", name, err)
	}
	return f, nil
}

// resolveScalar trims whitespace and removes surrounding quotes from YAML-like scalars.
// For example:
//
//	"localhost"  -> localhost
//	'password123' -> password123
//	localhost     -> localhost
//
// This ensures values like jwt.secret_key are not stored with extra quotes.
func resolveScalar(s string) string {
	s = strings.TrimSpace(s)

	// if value is quoted with "..." or '...', remove quotes safely
	n := len(s)
	if n >= 2 {
		if (s[0] == '"' && s[n-1] == '"') || (s[0] == '\'' && s[n-1] == '\'') {
			if unq, err := strconv.Unquote(s); err == nil {
				return unq
			}
			// fallback if strconv.Unquote fails (e.g., mismatched quotes)
			return s[1 : n-1]
		}
	}

	return s
}
