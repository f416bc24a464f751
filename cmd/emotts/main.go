package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/iabetor/emotts/internal/config"
	"github.com/iabetor/emotts/internal/database"
	"github.com/iabetor/emotts/internal/history"
	"github.com/iabetor/emotts/internal/logger"
	"github.com/iabetor/emotts/internal/server"
	"github.com/iabetor/emotts/internal/speech"
)

const defaultAddr = "127.0.0.1:59126"

const usageExtra = `-wav		 save to wav play instead of sending directly to audioout
-stress		 apply stressed prosody to an utterance
-anger		 apply angry, frustrated prosody to an utterance
-confusion		 apply confused, perplexed prosody to an utterance
-male		 use male voice
-female		 use female voice
`

func main() {
	configPath := flag.String("config", "configs/emotts.yaml", "配置文件路径")
	saveWAV := flag.Bool("wav", false, "合成结果写入 WAV 文件而不是播放")
	stress := flag.Bool("stress", false, "使用 STRESS 风格")
	anger := flag.Bool("anger", false, "使用 ANGER 风格")
	confusion := flag.Bool("confusion", false, "使用 CONFUSION 风格")
	male := flag.Bool("male", false, "使用男声")
	female := flag.Bool("female", false, "使用女声")
	voice := flag.String("voice", "", "音色名称")
	say := flag.String("say", "", "合成并播放一句话后退出")
	addr := flag.String("addr", "", "websocket 监听地址")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "用法: %s [选项]\n", os.Args[0])
		flag.PrintDefaults()
		fmt.Fprint(flag.CommandLine.Output(), "\n"+usageExtra)
	}
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}
	if *saveWAV {
		cfg.Speech.SaveToWAV = true
	}

	if err := logger.Init(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		File:       cfg.Log.File,
		MaxSize:    cfg.Log.MaxSize,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAge:     cfg.Log.MaxAge,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Infof("[main] emotts 启动中 (log_level=%s)", cfg.Log.Level)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 监听系统信号，优雅关闭
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Infof("[main] 收到信号 %v，正在关闭...", sig)
		cancel()
	}()

	var store *history.Store
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Warnf("[main] 打开数据库失败，不记录话语日志: %v", err)
	} else {
		defer db.Close()
		if err := db.Migrate(); err != nil {
			logger.Warnf("[main] 数据库迁移失败，不记录话语日志: %v", err)
		} else {
			store = history.NewStore(db)
		}
	}

	c, err := speech.New(cfg, store)
	if err != nil {
		logger.Errorf("[main] 创建语音协调器失败: %v", err)
		os.Exit(1)
	}
	defer c.Close()

	switch {
	case *stress:
		c.SetEmotionalStyle("stress")
	case *anger:
		c.SetEmotionalStyle("anger")
	case *confusion:
		c.SetEmotionalStyle("confusion")
	}
	switch {
	case *voice != "":
		c.SetVoice(*voice)
	case *male:
		c.SetVoice("male")
	case *female:
		c.SetVoice("female")
	}

	if *say != "" {
		if err := c.SpeakErr(ctx, *say, true); err != nil {
			logger.Errorf("[main] 合成失败: %v", err)
			os.Exit(1)
		}
		return
	}

	listen := cfg.Server.Addr
	if *addr != "" {
		listen = *addr
	}
	if listen == "" {
		listen = defaultAddr
	}

	srv := server.New(listen, speech.NewService(c))
	c.SetOnStateChange(func(from, to speech.State) {
		srv.Publish("state", map[string]string{"from": from.String(), "to": to.String()})
	})

	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Errorf("[main] 服务运行出错: %v", err)
		os.Exit(1)
	}

	logger.Info("[main] emotts 已停止")
}

// loadConfig 读取配置文件；使用默认路径且文件不存在时退回默认配置。
func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && !isFlagSet("config") {
		return config.Default(), nil
	}
	return config.Load(path)
}

func isFlagSet(name string) bool {
	set := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}
