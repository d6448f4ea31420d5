package main

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gwillem/dobot-teleop/pkg/logging"
	recpkg "github.com/gwillem/dobot-teleop/pkg/record"
	"github.com/gwillem/dobot-teleop/pkg/teleop"
)

type RecordCommand struct {
	Episode   int    `short:"e" long:"episode" description:"Episode number (default: next free number in the output directory)"`
	Task      string `short:"t" long:"task" description:"Task description stored with the episode"`
	Dir       string `short:"o" long:"out" description:"Output directory (default from config)"`
	Format    string `long:"format" choice:"csv" choice:"sqlite" description:"Structured log format (default from config)"`
	Hz        int    `long:"hz" description:"Control loop frequency (default from config)"`
	JointMode bool   `long:"joint-mode" description:"Servo in joint space through the controller's inverse kinematics"`
	Headless  bool   `long:"headless" description:"No terminal UI; stop with Ctrl-C"`
}

func (c *RecordCommand) Execute(args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyControlFlags(cfg, c.Hz, c.JointMode)
	if c.Dir != "" {
		cfg.Recording.Dir = c.Dir
	}
	if c.Format != "" {
		cfg.Recording.Format = recpkg.LogFormat(c.Format)
	}
	if c.Task != "" {
		cfg.Recording.Task = c.Task
	}

	episode := c.Episode
	if episode <= 0 {
		if episode, err = nextEpisode(cfg.Recording.Dir); err != nil {
			return err
		}
	}

	var feed *logging.Feed
	if !c.Headless {
		feed = logging.NewFeed(100)
	}
	logger := newLogger(feed)
	defer logger.Sync()

	r, err := openRig(context.Background(), cfg, logger, true)
	if err != nil {
		return err
	}
	defer r.close()

	sink := recpkg.NewEpisode(cfg.Episode(episode), logger)
	r.deps.Recorder = recpkg.NewRecorder(sink, logger)

	ctrl := teleop.NewController(cfg.Teleop(), r.deps)
	title := fmt.Sprintf("Dobot Record - episode %04d", episode)
	if err := run(ctrl, feed, title, c.Headless); err != nil {
		return err
	}
	meta := sink.Meta()
	fmt.Printf("Episode %04d saved to %s: %d ticks, %.1fs, %d/%d camera gaps\n",
		episode, cfg.Recording.Dir, meta.Ticks, meta.DurationS, meta.TopGaps, meta.WristGaps)
	return nil
}

var episodeMeta = regexp.MustCompile(`^episode_(\d+)_meta\.json$`)

// nextEpisode returns one past the highest episode recorded in dir.
func nextEpisode(dir string) (int, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "episode_*_meta.json"))
	if err != nil {
		return 0, err
	}
	next := 1
	for _, m := range matches {
		sub := episodeMeta.FindStringSubmatch(filepath.Base(m))
		if sub == nil {
			continue
		}
		if n, err := strconv.Atoi(sub[1]); err == nil && n >= next {
			next = n + 1
		}
	}
	return next, nil
}
