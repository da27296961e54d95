package zone

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Command is an automatic action the evaluator can allow or block
type Command string

const (
	CommandOn  Command = "on"
	CommandOff Command = "off"
)

// BlockAction is the set of automatic actions a window suppresses
type BlockAction int

const (
	BlockOn BlockAction = iota
	BlockOff
	BlockBoth
)

func (a BlockAction) String() string {
	switch a {
	case BlockOn:
		return "on"
	case BlockOff:
		return "off"
	case BlockBoth:
		return "on_off"
	default:
		return "unknown"
	}
}

// blocks reports whether the action set includes the given command
func (a BlockAction) blocks(cmd Command) bool {
	switch a {
	case BlockBoth:
		return true
	case BlockOn:
		return cmd == CommandOn
	case BlockOff:
		return cmd == CommandOff
	default:
		return false
	}
}

// ParseBlockAction decodes a configured action set. Unrecognized values
// are rejected at configuration load, not silently degraded at use time.
func ParseBlockAction(s string) (BlockAction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on":
		return BlockOn, nil
	case "off":
		return BlockOff, nil
	case "on_off", "":
		return BlockBoth, nil
	default:
		return BlockBoth, fmt.Errorf("unrecognized block action %q (want on, off or on_off)", s)
	}
}

// BlockWindowConfig is the YAML shape of one quiet window
type BlockWindowConfig struct {
	Start   string   `yaml:"start"`
	End     string   `yaml:"end"`
	Days    []string `yaml:"days"`
	Actions string   `yaml:"actions"`
}

// blockWindow is a compiled quiet window. Start and end are minutes
// since midnight; start > end means the window wraps past midnight.
type blockWindow struct {
	startMin int
	endMin   int
	days     map[string]bool // 3-letter lowercase weekday, nil = every day
	action   BlockAction
	label    string
}

// parseHHMM parses "HH:MM" into minutes since midnight
func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("malformed time %q (want HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("malformed hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("malformed minute in %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

// withinWindow reports whether nowMin falls in [start, end), wrapping
// past midnight when start > end. A window with start == end never
// matches.
func withinWindow(startMin, endMin, nowMin int) bool {
	if startMin == endMin {
		return false
	}
	if startMin < endMin {
		return nowMin >= startMin && nowMin < endMin
	}
	return nowMin >= startMin || nowMin < endMin
}

// BlockWindowEvaluator decides whether automatic ON/OFF is currently
// suppressed by configured quiet windows.
type BlockWindowEvaluator struct {
	windows []blockWindow
	legacy  *blockWindow
	now     func() time.Time
}

// compileBlockWindows turns window configs into compiled windows.
// A window with an unrecognized action set fails the whole load; a
// window with a malformed time string is skipped with a warning while
// the others stay in effect.
func compileBlockWindows(cfgs []BlockWindowConfig, defaultAction BlockAction, logger *zap.Logger) ([]blockWindow, error) {
	windows := make([]blockWindow, 0, len(cfgs))
	for i, w := range cfgs {
		action := defaultAction
		if w.Actions != "" {
			parsed, err := ParseBlockAction(w.Actions)
			if err != nil {
				return nil, fmt.Errorf("block window %d: %w", i, err)
			}
			action = parsed
		}

		start, err := parseHHMM(w.Start)
		if err != nil {
			logger.Warn("Skipping block window with malformed start",
				zap.Int("index", i), zap.Error(err))
			continue
		}
		end, err := parseHHMM(w.End)
		if err != nil {
			logger.Warn("Skipping block window with malformed end",
				zap.Int("index", i), zap.Error(err))
			continue
		}

		var days map[string]bool
		if len(w.Days) > 0 {
			days = make(map[string]bool, len(w.Days))
			for _, d := range w.Days {
				d = strings.ToLower(strings.TrimSpace(d))
				if len(d) > 3 {
					d = d[:3]
				}
				days[d] = true
			}
		}

		windows = append(windows, blockWindow{
			startMin: start,
			endMin:   end,
			days:     days,
			action:   action,
			label:    fmt.Sprintf("%s %s-%s", action, w.Start, w.End),
		})
	}
	return windows, nil
}

// NewBlockWindowEvaluator builds an evaluator over compiled windows plus
// an optional legacy quiet_start/quiet_end pair used when no explicit
// window matches.
func NewBlockWindowEvaluator(windows []blockWindow, legacy *blockWindow, now func() time.Time) *BlockWindowEvaluator {
	return &BlockWindowEvaluator{
		windows: windows,
		legacy:  legacy,
		now:     now,
	}
}

// activeBlock returns the first matching window's action set, if any
func (e *BlockWindowEvaluator) activeBlock() (BlockAction, string, bool) {
	t := e.now()
	nowMin := t.Hour()*60 + t.Minute()
	day := strings.ToLower(t.Format("Mon"))

	for _, w := range e.windows {
		if !withinWindow(w.startMin, w.endMin, nowMin) {
			continue
		}
		if w.days != nil && !w.days[day] {
			continue
		}
		return w.action, w.label, true
	}

	if e.legacy != nil && withinWindow(e.legacy.startMin, e.legacy.endMin, nowMin) {
		return e.legacy.action, e.legacy.label, true
	}

	return BlockBoth, "", false
}

// IsAllowed reports whether the command may be issued right now
func (e *BlockWindowEvaluator) IsAllowed(cmd Command) bool {
	action, _, blocked := e.activeBlock()
	if !blocked {
		return true
	}
	return !action.blocks(cmd)
}

// ActiveBlockLabel returns a human-readable description of the current
// block, or empty when nothing is blocked. Used in log lines.
func (e *BlockWindowEvaluator) ActiveBlockLabel() string {
	_, label, blocked := e.activeBlock()
	if !blocked {
		return ""
	}
	return label
}
