package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/kiranvinzoda4/ai-dream-creater/internal/app"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/config"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/database"
	"github.com/kiranvinzoda4/ai-dream-creater/internal/storage"
)

func main() {
	var (
		sweep      = flag.Bool("sweep", false, "推进一批未完成的 dream 后退出")
		limit      = flag.Int("limit", 0, "sweep 处理上限（默认读 WORKER_SWEEP_BATCH）")
		dreamID    = flag.String("dream", "", "查询并推进指定 dream，输出 JSON")
		createUser = flag.String("create-user", "", "创建账号的邮箱，随机生成初始密码")
		name       = flag.String("name", "", "与 --create-user 一起使用的显示名")
		timeout    = flag.Duration("timeout", 5*time.Minute, "整体超时")
	)
	flag.Parse()

	if !*sweep && strings.TrimSpace(*dreamID) == "" && strings.TrimSpace(*createUser) == "" {
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.MustLoad()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		log.Fatalf("init database: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		log.Fatalf("migrate database: %v", err)
	}

	storageClient, err := storage.NewClient(cfg.MinIO)
	if err != nil {
		log.Fatalf("init storage client: %v", err)
	}
	gen, err := app.NewGenerator(ctx, cfg.Generator)
	if err != nil {
		log.Fatalf("init generator: %v", err)
	}
	services := app.NewServices(cfg, db, storageClient, gen, nil, nil, logger)

	if email := strings.ToLower(strings.TrimSpace(*createUser)); email != "" {
		displayName := strings.TrimSpace(*name)
		if displayName == "" {
			displayName = strings.SplitN(email, "@", 2)[0]
		}
		password, err := generateRandomPassword(24)
		if err != nil {
			log.Fatalf("generate password: %v", err)
		}
		if err := services.Users.Register(ctx, displayName, email, password); err != nil {
			log.Fatalf("create user: %v", err)
		}
		fmt.Printf("已创建账号：%s\n", email)
		fmt.Printf("初始密码: %s\n", password)
		fmt.Printf("提示：该密码仅显示一次。\n")
	}

	if id := strings.TrimSpace(*dreamID); id != "" {
		view, err := services.Dreams.CheckStatus(ctx, id)
		if err != nil {
			log.Fatalf("check dream %s: %v", id, err)
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(view); err != nil {
			log.Fatalf("encode dream: %v", err)
		}
	}

	if *sweep {
		n := *limit
		if n <= 0 {
			n = cfg.Worker.SweepBatch
		}
		res, err := services.Dreams.Sweep(ctx, n)
		if err != nil {
			log.Fatalf("sweep dreams: %v", err)
		}
		fmt.Printf("checked=%d advanced=%d errors=%d\n", res.Checked, res.Advanced, res.Errors)
	}
}

func generateRandomPassword(bytesLen int) (string, error) {
	if bytesLen <= 0 {
		bytesLen = 24
	}
	buf := make([]byte, bytesLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
