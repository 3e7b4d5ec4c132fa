// Package main 是应用程序的入口点。
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"trainvault-go/internal/cache"
	"trainvault-go/internal/config"
	"trainvault-go/internal/crypto"
	"trainvault-go/internal/handler"
	"trainvault-go/internal/metrics"
	"trainvault-go/internal/middleware"
	"trainvault-go/internal/model"
	"trainvault-go/internal/provider"
	"trainvault-go/internal/repository"
	"trainvault-go/internal/service"
	"trainvault-go/pkg/database"
	"trainvault-go/pkg/log"
	"trainvault-go/pkg/notify"

	"github.com/gin-gonic/gin"
)

func main() {
	// 1. 初始化配置（加载即校验，非法配置直接终止启动）
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	// 2. 初始化日志记录器
	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("日志记录器初始化成功")

	// 3. 初始化数据库与缓存传输层
	database.InitMySQL(cfg.Database.MySQL.DSN)
	if err := database.DB.AutoMigrate(&model.FileMetadata{}); err != nil {
		log.Fatal("元数据目录表迁移失败", err)
	}

	var metaCache cache.MetadataCache
	ttl := time.Duration(cfg.Cache.TTLSeconds) * time.Second
	if cfg.Cache.Backend == "redis" {
		database.InitRedis(cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
		metaCache = cache.NewRedis(database.RDB, ttl)
	} else {
		metaCache = cache.NewMemory(ttl, cfg.Cache.MaxEntries)
	}

	// 4. 构建存储后端单例（进程生命周期内不可重新配置）
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry, primary, fallbackLocal := buildProviders(ctx, cfg.Storage)

	// 5. 初始化加密编解码器（非法密钥是致命的启动错误）
	codec, err := crypto.NewCodec(cfg.Encryption.Key, 0)
	if err != nil {
		log.Fatal("加密密钥非法", err)
	}
	defer codec.Close()

	// 6. 初始化协作方与编排服务（依赖注入）
	recorder, err := metrics.NewOtelRecorder()
	if err != nil {
		log.Fatal("指标记录器初始化失败", err)
	}
	sender := notify.NewKafkaSender(cfg.Notification.Kafka)
	defer sender.Close()

	fileRepo := repository.NewFileMetadataRepository(database.DB)
	ownerRepo := repository.NewOwnerRepository(database.DB)
	notifier := service.NewNotifier()
	fileService := service.NewFileService(
		primary, fallbackLocal, registry,
		fileRepo, metaCache, codec, ownerRepo, notifier, sender, recorder,
		cfg.Files,
	)

	// 7. 启动后台周期任务：孤儿清理与通知摘要
	scheduler := service.NewScheduler()
	scheduler.Every(ctx, "orphan-cleanup",
		time.Duration(cfg.Cleanup.PeriodMinutes)*time.Minute,
		func(ctx context.Context) error {
			_, err := fileService.CleanupOrphanedFiles(ctx)
			return err
		})
	scheduler.Every(ctx, "notification-digest",
		time.Duration(cfg.Notification.DigestPeriodMinutes)*time.Minute,
		fileService.SendDailyNotificationSummary)

	// 8. 设置 Gin 模式并创建路由引擎
	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.CorrelationID(), middleware.RequestLogger(), gin.Recovery())

	// 9. 注册路由
	fileHandler := handler.NewFileHandler(fileService)
	apiV1 := r.Group("/api/v1")
	{
		files := apiV1.Group("/files")
		{
			files.POST("", fileHandler.Upload)
			files.GET("/:fileId", fileHandler.Download)
			files.DELETE("/:fileId", fileHandler.Delete)
		}

		admin := apiV1.Group("/admin/files")
		{
			admin.POST("/cleanup", fileHandler.Cleanup)
			admin.POST("/notify-digest", fileHandler.NotifyDigest)
		}
	}

	// 启动 HTTP 服务器并实现优雅停机
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("服务启动于 %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP 服务监听失败: %s", err)
		}
	}()

	// 等待中断信号以实现优雅停机
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("接收到停机信号，正在关闭服务...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("HTTP 服务器关闭失败: %v", err)
	}

	// 停止后台任务并等待收尾
	cancel()
	scheduler.Wait()
	log.Info("服务已优雅关闭")
}

// buildProviders 按配置构建存储后端变体并套上共享的校验/重试装饰器。
// 主后端必须可用；其余变体按配置可选注册，供历史目录行的读取/删除/清理调度。
// 返回值中的第三项是未装饰的本地变体，仅用于上传失败后的单次回退写入。
func buildProviders(ctx context.Context, cfg config.StorageConfig) (*provider.Registry, provider.Provider, provider.Provider) {
	threshold := cfg.MultipartThresholdBytes

	local, err := provider.NewLocal(cfg.Local, threshold)
	if err != nil {
		log.Fatal("本地存储后端初始化失败", err)
	}

	providers := []provider.Provider{provider.Wrap(local, cfg.Retry)}

	if cfg.NAS.Addr != "" {
		nas, err := provider.NewNAS(cfg.NAS)
		if err != nil {
			log.Fatal("NAS 存储后端初始化失败", err)
		}
		providers = append(providers, provider.Wrap(nas, cfg.Retry))
	}
	if cfg.AWS.Endpoint != "" {
		aws, err := provider.NewAWS(ctx, cfg.AWS, threshold)
		if err != nil {
			log.Fatal("S3 存储后端初始化失败", err)
		}
		providers = append(providers, provider.Wrap(aws, cfg.Retry))
	}
	if cfg.GCP.Bucket != "" {
		gcp, err := provider.NewGCP(ctx, cfg.GCP, threshold)
		if err != nil {
			log.Fatal("GCS 存储后端初始化失败", err)
		}
		providers = append(providers, provider.Wrap(gcp, cfg.Retry))
	}
	if cfg.Alibaba.Endpoint != "" {
		ali, err := provider.NewAlibaba(ctx, cfg.Alibaba, threshold, nil)
		if err != nil {
			log.Fatal("OSS 存储后端初始化失败", err)
		}
		providers = append(providers, provider.Wrap(ali, cfg.Retry))
	}

	registry := provider.NewRegistry(providers...)
	primary, err := registry.Get(cfg.Backend)
	if err != nil {
		log.Fatal("主存储后端未激活", err)
	}
	return registry, primary, local
}
