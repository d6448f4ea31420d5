package robot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePose(t *testing.T) {
	tests := []struct {
		name    string
		reply   string
		want    Pose
		wantErr bool
	}{
		{"well formed", "0,{358.1,-12.0,210.5,180.0,0.0,90.0},GetPose();", Pose{358.1, -12, 210.5, 180, 0, 90}, false},
		{"spaces", "0,{ 1, 2 ,3,4, 5,6 },GetPose();", Pose{1, 2, 3, 4, 5, 6}, false},
		{"first payload wins", "0,{1,2,3,4,5,6},{9,9},GetPose();", Pose{1, 2, 3, 4, 5, 6}, false},
		{"empty payload", "0,{},GetPose();", Pose{}, true},
		{"no payload", "-1,GetPose();", Pose{}, true},
		{"short payload", "0,{1,2,3},GetPose();", Pose{}, true},
		{"garbage token", "0,{1,2,x,4,5,6},GetPose();", Pose{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParsePose(tt.reply)
			if tt.wantErr {
				var pe *ParseError
				require.True(t, errors.As(err, &pe), "want *ParseError, got %v", err)
				assert.Equal(t, tt.reply, pe.Reply)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("0,{5},RobotMode();")
	require.NoError(t, err)
	assert.Equal(t, ModeEnabled, mode)

	mode, err = ParseMode("0,{4},RobotMode();")
	require.NoError(t, err)
	assert.Equal(t, ModeError, mode)

	mode, err = ParseMode("RobotMode();")
	assert.Error(t, err)
	assert.Equal(t, ModeUnknown, mode)
}

func TestParseErrorID(t *testing.T) {
	id, err := ParseErrorID("-30001,{},SpeedFactor(200);")
	require.NoError(t, err)
	assert.Equal(t, -30001, id)

	_, err = ParseErrorID("nonsense")
	assert.Error(t, err)
}

func TestFormatServo(t *testing.T) {
	assert.Equal(t,
		"ServoP(300.0000,-10.5000,120.0000,180.0000,0.0000,-90.0000)",
		FormatServoP(Pose{300, -10.5, 120, 180, 0, -90}))
	assert.Equal(t,
		"ServoJ(1.0000,2.0000,3.0000,4.0000,5.0000,6.0000,t=0.1,gain=500,lookahead_time=50)",
		FormatServoJ(Joints{1, 2, 3, 4, 5, 6}))
}

func TestFormatCall(t *testing.T) {
	assert.Equal(t, "ToolDOExecute(2,0)", formatCall("ToolDOExecute", 2, 0))
	assert.Equal(t, "InverseSolution(300.5,0,1,0)", formatCall("InverseSolution", 300.5, 0.0, 1, 0))
}
