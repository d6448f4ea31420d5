package main

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/gwillem/dobot-teleop/pkg/robot"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

type InfoCommand struct {
	Host string `long:"host" description:"Controller address (default from config)"`
}

// Execute queries the dashboard port only, so the arm is never enabled.
func (c *InfoCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if c.Host != "" {
		cfg.Robot.Host = c.Host
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	addr := cfg.Robot.Addr(cfg.Robot.DashboardPort)
	dash, err := robot.DialDashboard(ctx, addr, 2*time.Second)
	if err != nil {
		return err
	}
	defer dash.Close()

	fmt.Println(headerStyle.Render("Dobot controller " + addr))
	fmt.Println()

	mode, err := dash.RobotMode(ctx)
	if err != nil {
		fmt.Println("Mode:  " + dimStyle.Render(err.Error()))
	} else {
		fmt.Printf("Mode:  %s\n", mode)
	}
	fmt.Println()

	pose, perr := dash.GetPose(ctx)
	joints, jerr := dash.GetAngle(ctx)
	fmt.Println(stateTable(pose, perr, joints, jerr))
	return nil
}

func stateTable(pose robot.Pose, perr error, joints robot.Joints, jerr error) string {
	axes, names := robot.PoseAxes(), robot.JointNames()
	rows := make([][]string, 6)
	for i := range rows {
		rows[i] = []string{axes[i], value(pose[i], perr), names[i], value(joints[i], jerr)}
	}
	return table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Axis", "Pose", "Joint", "Angle").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.Padding(0, 1)
			}
			return cellStyle
		}).
		Render()
}

func value(v float64, err error) string {
	if err != nil {
		return "?"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
