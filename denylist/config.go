package denylist

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

const defaultFeedRefresh = time.Hour

func parseListTypeValue(v string) (listType, error) {
	switch v {
	case "allow":
		return listTypeAllow, nil
	case "deny":
		return listTypeDeny, nil
	default:
		return "", fmt.Errorf("invalid type: %s (expected allow or deny)", v)
	}
}

func parseFormatValue(v string) (feedFormat, error) {
	switch v {
	case "ip":
		return formatIP, nil
	case "url":
		return formatURL, nil
	default:
		return "", fmt.Errorf("invalid format: %s (expected ip or url)", v)
	}
}

// ParseDirectives builds a Manager from list directives, one per entry:
//
//	file <path> [type=allow|deny] [format=ip|url] [name=<name>]
//	feed <url> format=ip|url [type=allow|deny] [refresh=<duration>] [name=<name>]
//
// Relative file paths are resolved against baseDir. Blank entries and entries
// starting with # are ignored. Returns nil when no list is configured.
func ParseDirectives(directives []string, baseDir string) (*Manager, error) {
	var checkers []checker
	closeAll := func() {
		for _, c := range checkers {
			if closer, ok := c.(io.Closer); ok {
				closer.Close()
			}
		}
	}

	for _, d := range directives {
		fields := strings.Fields(d)
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		var (
			c   checker
			err error
		)
		switch fields[0] {
		case "file":
			var cfg fileConfig
			if cfg, err = parseFileDirective(fields[1:], baseDir); err == nil {
				c, err = newFileList(cfg)
				if err != nil {
					err = fmt.Errorf("file %s: %w", cfg.Path, err)
				}
			}
		case "feed":
			var cfg feedConfig
			if cfg, err = parseFeedDirective(fields[1:]); err == nil {
				c, err = newFeedList(cfg)
				if err != nil {
					err = fmt.Errorf("feed %s: %w", cfg.URL, err)
				}
			}
		default:
			err = fmt.Errorf("unknown directive: %s", fields[0])
		}
		if err != nil {
			closeAll()
			return nil, err
		}
		checkers = append(checkers, c)
	}

	if len(checkers) == 0 {
		return nil, nil
	}

	mgr := NewManager()
	for _, c := range checkers {
		mgr.add(c)
	}
	return mgr, nil
}

// splitOption splits a key=value argument.
func splitOption(arg string) (string, string, error) {
	k, v, ok := strings.Cut(arg, "=")
	if !ok {
		return "", "", fmt.Errorf("invalid option: %s (expected key=value)", arg)
	}
	return k, v, nil
}

func parseFileDirective(args []string, baseDir string) (fileConfig, error) {
	cfg := fileConfig{
		BaseDir: baseDir,
		Type:    listTypeDeny,
		Format:  formatIP,
	}
	if len(args) == 0 {
		return cfg, errors.New("file directive requires a path")
	}
	cfg.Path = args[0]

	for _, arg := range args[1:] {
		k, v, err := splitOption(arg)
		if err != nil {
			return cfg, err
		}
		switch k {
		case "type":
			if cfg.Type, err = parseListTypeValue(v); err != nil {
				return cfg, err
			}
		case "format":
			if cfg.Format, err = parseFormatValue(v); err != nil {
				return cfg, err
			}
		case "name":
			cfg.Name = v
		default:
			return cfg, fmt.Errorf("unknown file option: %s", k)
		}
	}

	return cfg, nil
}

func parseFeedDirective(args []string) (feedConfig, error) {
	cfg := feedConfig{
		Type:    listTypeDeny,
		Refresh: defaultFeedRefresh,
	}
	if len(args) == 0 {
		return cfg, errors.New("feed directive requires a URL")
	}
	cfg.URL = args[0]

	var hasFormat bool
	for _, arg := range args[1:] {
		k, v, err := splitOption(arg)
		if err != nil {
			return cfg, err
		}
		switch k {
		case "format":
			if cfg.Format, err = parseFormatValue(v); err != nil {
				return cfg, err
			}
			hasFormat = true
		case "type":
			if cfg.Type, err = parseListTypeValue(v); err != nil {
				return cfg, err
			}
		case "refresh":
			d, err := time.ParseDuration(v)
			if err != nil {
				return cfg, fmt.Errorf("invalid refresh duration: %w", err)
			}
			if d <= 0 {
				return cfg, fmt.Errorf("invalid refresh duration: %s must be positive", v)
			}
			cfg.Refresh = d
		case "name":
			cfg.Name = v
		default:
			return cfg, fmt.Errorf("unknown feed option: %s", k)
		}
	}

	if !hasFormat {
		return cfg, errors.New("feed directive requires format=ip|url")
	}

	return cfg, nil
}
