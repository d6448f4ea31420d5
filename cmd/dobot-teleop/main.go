package main

import (
	"os"

	"github.com/jessevdk/go-flags"
)

type Options struct {
	Config  string `short:"c" long:"config" default:"dobot.json" description:"Configuration file"`
	LogFile string `long:"log-file" description:"Also write a rotated debug log to this file"`
	Verbose bool   `short:"v" long:"verbose" description:"Log debug messages to the console"`

	Setup       SetupCommand       `command:"setup" description:"Configure the controller address, gamepad, cameras and gripper"`
	Teleoperate TeleoperateCommand `command:"teleoperate" alias:"teleop" description:"Drive the arm with the gamepad without recording"`
	Record      RecordCommand      `command:"record" description:"Teleoperate and record an episode"`
	Info        InfoCommand        `command:"info" description:"Show controller mode, pose and joint angles"`
}

var opts Options
var parser = flags.NewParser(&opts, flags.Default)

func main() {
	parser.LongDescription = "dobot-teleop - Gamepad teleoperation and episode recording for Dobot arms"

	_, err := parser.Parse()
	if err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				os.Exit(0)
			}
		}
		os.Exit(1)
	}
}
