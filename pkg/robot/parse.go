package robot

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Replies look like `0,{358.1,-12.0,210.5,180.0,0.0,90.0},GetPose();`:
// error id, brace-delimited payload, echoed command.
var payloadRe = regexp.MustCompile(`\{([^{}]*)\}`)

var (
	errNoPayload = errors.New("no brace-delimited payload")
	errNoErrorID = errors.New("no leading error id")
)

// ParseFloats extracts the first brace-delimited comma list in reply and
// parses every token as a float. When n > 0 the list must have exactly n
// values.
func ParseFloats(reply string, n int) ([]float64, error) {
	m := payloadRe.FindStringSubmatch(reply)
	if m == nil {
		return nil, errNoPayload
	}
	body := strings.TrimSpace(m[1])
	if body == "" {
		return nil, errNoPayload
	}
	tokens := strings.Split(body, ",")
	if n > 0 && len(tokens) != n {
		return nil, fmt.Errorf("want %d values, got %d", n, len(tokens))
	}
	values := make([]float64, len(tokens))
	for i, tok := range tokens {
		v, err := strconv.ParseFloat(strings.TrimSpace(tok), 64)
		if err != nil {
			return nil, fmt.Errorf("value %d: %w", i, err)
		}
		values[i] = v
	}
	return values, nil
}

// ParsePose parses a GetPose reply.
func ParsePose(reply string) (Pose, error) {
	var p Pose
	values, err := ParseFloats(reply, len(p))
	if err != nil {
		return p, &ParseError{Command: "GetPose", Reply: reply, Err: err}
	}
	copy(p[:], values)
	return p, nil
}

// ParseJoints parses a GetAngle or InverseSolution reply.
func ParseJoints(command, reply string) (Joints, error) {
	var j Joints
	values, err := ParseFloats(reply, len(j))
	if err != nil {
		return j, &ParseError{Command: command, Reply: reply, Err: err}
	}
	copy(j[:], values)
	return j, nil
}

// ParseMode parses a RobotMode reply.
func ParseMode(reply string) (Mode, error) {
	values, err := ParseFloats(reply, 1)
	if err != nil {
		return ModeUnknown, &ParseError{Command: "RobotMode", Reply: reply, Err: err}
	}
	return Mode(int(values[0])), nil
}

// ParseErrorID returns the leading error id of a reply.
func ParseErrorID(reply string) (int, error) {
	head, _, ok := strings.Cut(strings.TrimSpace(reply), ",")
	if !ok {
		return 0, &ParseError{Command: "reply", Reply: reply, Err: errNoErrorID}
	}
	id, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0, &ParseError{Command: "reply", Reply: reply, Err: err}
	}
	return id, nil
}

// FormatServoP renders a Cartesian servo command.
func FormatServoP(p Pose) string {
	return fmt.Sprintf("ServoP(%.4f,%.4f,%.4f,%.4f,%.4f,%.4f)", p[0], p[1], p[2], p[3], p[4], p[5])
}

// Joint servo tuning. These are hand-tuned values, not derived from anything.
const (
	ServoJDuration  = 0.1 // seconds the controller has to reach each target
	ServoJGain      = 500 // proportional gain, 200-1000
	ServoJLookahead = 50  // damping, 20-100
)

// FormatServoJ renders a joint-space servo command.
func FormatServoJ(j Joints) string {
	return fmt.Sprintf("ServoJ(%.4f,%.4f,%.4f,%.4f,%.4f,%.4f,t=%g,gain=%d,lookahead_time=%d)",
		j[0], j[1], j[2], j[3], j[4], j[5], ServoJDuration, ServoJGain, ServoJLookahead)
}

func formatCall(name string, args ...any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		switch v := a.(type) {
		case float64:
			parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			parts[i] = fmt.Sprint(v)
		}
	}
	return name + "(" + strings.Join(parts, ",") + ")"
}
