package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fyerfyer/meeting-QA-system/api"
	"github.com/fyerfyer/meeting-QA-system/api/handler"
	"github.com/fyerfyer/meeting-QA-system/api/middleware"
	appconfig "github.com/fyerfyer/meeting-QA-system/config"
	"github.com/fyerfyer/meeting-QA-system/internal/cache"
	"github.com/fyerfyer/meeting-QA-system/internal/database"
	"github.com/fyerfyer/meeting-QA-system/internal/embedding"
	"github.com/fyerfyer/meeting-QA-system/internal/llm"
	"github.com/fyerfyer/meeting-QA-system/internal/repository"
	"github.com/fyerfyer/meeting-QA-system/internal/services"
	"github.com/fyerfyer/meeting-QA-system/internal/transcript"
	"github.com/fyerfyer/meeting-QA-system/internal/vectordb"
	"github.com/fyerfyer/meeting-QA-system/pkg/storage"
	"github.com/fyerfyer/meeting-QA-system/pkg/taskqueue"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// 配置选项
type config struct {
	Port            int           // 服务端口
	Mode            string        // 运行模式 (debug/release)
	LogLevel        string        // 日志级别
	LogFile         string        // API日志文件路径（为空时只输出到标准输出）
	ReadTimeout     time.Duration // 读取超时
	WriteTimeout    time.Duration // 写入超时
	StorageType     string        // 存储类型 (local/minio)
	StoragePath     string        // 本地文件存储路径
	VectorDBPath    string        // 向量数据库索引路径
	VectorDimension int           // 向量维度
	EmbeddingModel  string        // 嵌入模型名称
	EmbeddingAPIKey string        // 嵌入API密钥
	LLMModel        string        // 大语言模型名称
	LLMAPIKey       string        // 大语言模型API密钥
	ChunkSize       int           // 分块大小（字符）
	ChunkOverlap    int           // 分块重叠大小
	NotesMaxLength  int           // 会议备注截断长度
	CacheType       string        // 缓存类型 (memory/redis)
	DataDir         string        // 数据目录路径
	CorpusDir       string        // 启动时批量加载的MRT语料目录（为空时跳过）
	SearchLimit     int           // 检索结果数量
	MinScore        float64       // 最低相似度分数
	ConfigFile      string        // 配置文件路径
	// 任务队列相关配置
	QueueEnabled     bool          // 是否启用任务队列
	QueueType        string        // 任务队列类型
	RedisAddr        string        // Redis 地址
	RedisPassword    string        // Redis 密码
	RedisDB          int           // Redis 数据库编号
	QueueConcurrency int           // 任务队列处理并发数
	QueueRetryLimit  int           // 任务重试次数
	QueueRetryDelay  time.Duration // 任务重试延迟

	// 从配置文件加载的完整配置（可能为nil）
	fileConfig *appconfig.Config
}

func main() {
	// 解析命令行参数
	cfg := parseFlags()

	// 加载配置文件(如果指定)
	if cfg.ConfigFile != "" {
		appConfig, err := appconfig.Load(cfg.ConfigFile)
		if err != nil {
			log.Printf("Warning: Failed to load config file: %v, using command line args", err)
		} else {
			// 使用配置文件中的值更新相关设置
			updateConfigFromFile(&cfg, appConfig)
		}
	}

	// 设置Gin模式
	gin.SetMode(cfg.Mode)

	// 初始化日志
	logger := setupLogger(cfg)
	logger.Info("Starting Meeting QA System...")

	// 初始化数据库
	if err := setupDatabase(cfg, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}

	// 创建文件存储服务
	fileStorage, err := setupStorage(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	// 创建向量数据库
	vectorDB, err := setupVectorDB(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	// 创建嵌入客户端
	embeddingClient, err := setupEmbedding(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	// 创建大语言模型客户端
	llmClient, err := setupLLM(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 创建缓存服务
	cacheService, err := setupCache(cfg)
	if err != nil {
		logger.Fatalf("Failed to initialize cache: %v", err)
	}

	// 初始化任务队列（如果启用）
	var queue taskqueue.Queue
	if cfg.QueueEnabled {
		queue, err = setupTaskQueue(cfg, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
		logger.Info("Task queue initialized successfully")
	}

	// 创建MRT解析器和分块器
	parser := transcript.NewParser(
		transcript.WithNotesMaxLength(cfg.NotesMaxLength),
		transcript.WithLogger(logger),
	)
	splitter := transcript.NewSplitter(transcript.SplitterConfig{
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
	})

	// 初始化RAG服务
	ragService := llm.NewRAG(llmClient,
		llm.WithRAGMaxTokens(2048),
		llm.WithRAGTemperature(0.7),
	)

	// 初始化业务服务
	var transcriptRepo repository.TranscriptRepository
	if queue != nil {
		// 如果启用了任务队列，使用带队列的仓储
		transcriptRepo = repository.NewTranscriptRepositoryWithQueue(database.MustDB(), queue)
		logger.Info("Using transcript repository with task queue")
	} else {
		transcriptRepo = repository.NewTranscriptRepository()
	}

	statusManager := services.NewTranscriptStatusManager(transcriptRepo, logger)

	// 创建转写服务，根据是否启用队列进行配置
	transcriptServiceOptions := []services.TranscriptOption{
		services.WithTranscriptRepository(transcriptRepo),
		services.WithStatusManager(statusManager),
		services.WithBatchSize(16),
		services.WithLogger(logger),
	}

	// 如果启用了队列，添加相关选项
	if queue != nil {
		transcriptServiceOptions = append(transcriptServiceOptions,
			services.WithTaskQueue(queue),
			services.WithAsyncProcessing(true),
		)
		logger.Info("Transcript processing will use async task queue")
	}

	transcriptService := services.NewTranscriptService(
		fileStorage,
		parser,
		splitter,
		embeddingClient,
		vectorDB,
		transcriptServiceOptions...,
	)
	if err := transcriptService.Init(); err != nil {
		logger.Fatalf("Failed to initialize transcript service: %v", err)
	}

	// 启动任务队列工作者（如果启用）
	var worker taskqueue.Worker
	if queue != nil {
		worker, err = startWorker(queue, cfg, transcriptService, logger)
		if err != nil {
			logger.Fatalf("Failed to start task queue worker: %v", err)
		}
		defer worker.Stop()
	}

	qaService := services.NewQAService(
		embeddingClient,
		vectorDB,
		llmClient,
		ragService,
		cacheService,
		services.WithSearchLimit(cfg.SearchLimit),
		services.WithMinScore(float32(cfg.MinScore)),
	)

	chatService := services.NewChatService(
		repository.NewChatRepository(),
		services.WithChatLogger(logger),
	)

	// 启动时批量加载MRT语料（如果配置了语料目录）
	if cfg.CorpusDir != "" {
		if err := loadCorpus(context.Background(), cfg, parser, splitter, embeddingClient, vectorDB, logger); err != nil {
			logger.Fatalf("Failed to load corpus: %v", err)
		}
	}

	// 初始化API处理器
	fileHandler := handler.NewFileHandler(transcriptService)
	qaHandler := handler.NewQAHandler(qaService)
	chatHandler := handler.NewChatHandler(chatService, qaService)
	var taskHandler *handler.TaskHandler
	if queue != nil {
		taskHandler = handler.NewTaskHandler(queue)
	}

	// 设置路由
	r := api.SetupRouter(fileHandler, qaHandler, chatHandler, taskHandler)

	// 启动HTTP服务器
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	// 优雅关闭
	go func() {
		// 启动服务
		logger.Infof("Server is running on port %d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	// 等待终止信号
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	// 创建带超时的上下文
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 优雅关闭服务器
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// parseFlags 解析命令行参数
func parseFlags() config {
	cfg := config{}

	// 加载.env文件（如果存在）
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment variables from .env file")
	}

	// 服务配置
	flag.IntVar(&cfg.Port, "port", 8080, "Server port")
	flag.StringVar(&cfg.Mode, "mode", "debug", "Run mode (debug/release)")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level (debug/info/warn/error)")
	flag.StringVar(&cfg.LogFile, "log-file", "", "Log file path (empty for stdout only)")
	flag.DurationVar(&cfg.ReadTimeout, "read-timeout", 30*time.Second, "Read timeout")
	flag.DurationVar(&cfg.WriteTimeout, "write-timeout", 30*time.Second, "Write timeout")

	// 存储配置
	flag.StringVar(&cfg.StorageType, "storage-type", "local", "Storage type (local/minio)")
	flag.StringVar(&cfg.StoragePath, "storage", "./data/files", "File storage path")

	// 向量数据库配置
	flag.StringVar(&cfg.VectorDBPath, "vectordb", "./data/vectordb", "Vector database path")
	flag.IntVar(&cfg.VectorDimension, "dim", 1536, "Vector dimension")

	// 嵌入模型配置
	flag.StringVar(&cfg.EmbeddingModel, "embed-model", "text-embedding-3-small", "Embedding model name")
	flag.StringVar(&cfg.EmbeddingAPIKey, "embed-key", "", "Embedding API key")

	// LLM配置
	flag.StringVar(&cfg.LLMModel, "llm-model", "gpt-3.5-turbo", "LLM model name")
	flag.StringVar(&cfg.LLMAPIKey, "llm-key", "", "LLM API key")

	// 转写处理配置
	flag.IntVar(&cfg.ChunkSize, "chunk-size", 512, "Maximum transcript chunk size in characters")
	flag.IntVar(&cfg.ChunkOverlap, "chunk-overlap", 50, "Overlap between adjacent chunks in characters")
	flag.IntVar(&cfg.NotesMaxLength, "notes-max-length", 500, "Maximum length of meeting notes kept in metadata")

	// 缓存配置
	flag.StringVar(&cfg.CacheType, "cache", "memory", "Cache type (memory/redis)")

	// 数据目录配置
	flag.StringVar(&cfg.DataDir, "data-dir", "./data", "Data directory path")
	flag.StringVar(&cfg.CorpusDir, "corpus-dir", "", "Directory of .mrt files to index at startup (empty to skip)")

	// 检索配置
	flag.IntVar(&cfg.SearchLimit, "search-limit", 5, "Number of chunks retrieved per question")
	flag.Float64Var(&cfg.MinScore, "min-score", 0.7, "Minimum similarity score for retrieved chunks")

	// 配置文件
	flag.StringVar(&cfg.ConfigFile, "config", "", "Path to config file")

	// 任务队列配置
	flag.BoolVar(&cfg.QueueEnabled, "queue", false, "Enable task queue")
	flag.StringVar(&cfg.QueueType, "queue-type", "redis", "Task queue type (redis)")
	flag.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "Redis address for task queue")
	flag.StringVar(&cfg.RedisPassword, "redis-password", "", "Redis password")
	flag.IntVar(&cfg.RedisDB, "redis-db", 0, "Redis database number")
	flag.IntVar(&cfg.QueueConcurrency, "queue-concurrency", 10, "Task queue concurrency")
	flag.IntVar(&cfg.QueueRetryLimit, "queue-retry", 3, "Max retry attempts for failed tasks")
	flag.DurationVar(&cfg.QueueRetryDelay, "queue-retry-delay", time.Minute, "Delay between retry attempts")

	// 从环境变量获取API密钥（优先级高于命令行参数）
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.EmbeddingAPIKey = key
		cfg.LLMAPIKey = key
	}
	if key := os.Getenv("EMBEDDING_API_KEY"); key != "" {
		cfg.EmbeddingAPIKey = key
	}
	if key := os.Getenv("LLM_API_KEY"); key != "" {
		cfg.LLMAPIKey = key
	}
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		cfg.RedisAddr = redisAddr
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.RedisPassword = redisPassword
	}

	flag.Parse()
	return cfg
}

// updateConfigFromFile 从配置文件更新命令行参数
// 只更新未在命令行上明确设置的参数
func updateConfigFromFile(cfg *config, appConfig *appconfig.Config) {
	cfg.fileConfig = appConfig

	// 服务配置
	if flag.Lookup("port").DefValue == fmt.Sprint(cfg.Port) && appConfig.Server.Port > 0 {
		cfg.Port = appConfig.Server.Port
	}
	if flag.Lookup("log-file").DefValue == cfg.LogFile {
		cfg.LogFile = appConfig.Server.LogFile
	}

	// 存储配置
	if flag.Lookup("storage-type").DefValue == cfg.StorageType && appConfig.Storage.Type != "" {
		cfg.StorageType = appConfig.Storage.Type
	}
	if flag.Lookup("storage").DefValue == cfg.StoragePath && appConfig.Storage.Path != "" {
		cfg.StoragePath = appConfig.Storage.Path
	}

	// 向量数据库配置
	if flag.Lookup("vectordb").DefValue == cfg.VectorDBPath && appConfig.VectorDB.Path != "" {
		cfg.VectorDBPath = appConfig.VectorDB.Path
	}
	if flag.Lookup("dim").DefValue == fmt.Sprint(cfg.VectorDimension) && appConfig.VectorDB.Dim > 0 {
		cfg.VectorDimension = appConfig.VectorDB.Dim
	}

	// 模型配置
	if flag.Lookup("embed-model").DefValue == cfg.EmbeddingModel && appConfig.Embed.Model != "" {
		cfg.EmbeddingModel = appConfig.Embed.Model
	}
	if cfg.EmbeddingAPIKey == "" {
		cfg.EmbeddingAPIKey = appConfig.Embed.APIKey
	}
	if flag.Lookup("llm-model").DefValue == cfg.LLMModel && appConfig.LLM.Model != "" {
		cfg.LLMModel = appConfig.LLM.Model
	}
	if cfg.LLMAPIKey == "" {
		cfg.LLMAPIKey = appConfig.LLM.APIKey
	}

	// 语料配置
	if flag.Lookup("corpus-dir").DefValue == cfg.CorpusDir {
		cfg.CorpusDir = appConfig.Corpus.DataDir
	}
	if flag.Lookup("chunk-size").DefValue == fmt.Sprint(cfg.ChunkSize) && appConfig.Corpus.ChunkSize > 0 {
		cfg.ChunkSize = appConfig.Corpus.ChunkSize
	}
	if flag.Lookup("chunk-overlap").DefValue == fmt.Sprint(cfg.ChunkOverlap) && appConfig.Corpus.ChunkOverlap > 0 {
		cfg.ChunkOverlap = appConfig.Corpus.ChunkOverlap
	}
	if flag.Lookup("notes-max-length").DefValue == fmt.Sprint(cfg.NotesMaxLength) && appConfig.Corpus.NotesMaxLength > 0 {
		cfg.NotesMaxLength = appConfig.Corpus.NotesMaxLength
	}

	// 检索配置
	if flag.Lookup("search-limit").DefValue == fmt.Sprint(cfg.SearchLimit) && appConfig.Search.Limit > 0 {
		cfg.SearchLimit = appConfig.Search.Limit
	}
	if flag.Lookup("min-score").DefValue == fmt.Sprint(cfg.MinScore) && appConfig.Search.MinScore > 0 {
		cfg.MinScore = float64(appConfig.Search.MinScore)
	}

	// 缓存配置
	if flag.Lookup("cache").DefValue == cfg.CacheType && appConfig.Cache.Type != "" {
		cfg.CacheType = appConfig.Cache.Type
	}

	// 任务队列配置
	if flag.Lookup("queue").DefValue == fmt.Sprint(cfg.QueueEnabled) {
		cfg.QueueEnabled = appConfig.Queue.Enable
	}
	if flag.Lookup("queue-type").DefValue == cfg.QueueType && appConfig.Queue.Type != "" {
		cfg.QueueType = appConfig.Queue.Type
	}
	if flag.Lookup("redis-addr").DefValue == cfg.RedisAddr && appConfig.Queue.RedisAddr != "" {
		cfg.RedisAddr = appConfig.Queue.RedisAddr
	}
	if flag.Lookup("redis-password").DefValue == cfg.RedisPassword {
		cfg.RedisPassword = appConfig.Queue.RedisPassword
	}
	if flag.Lookup("redis-db").DefValue == fmt.Sprint(cfg.RedisDB) {
		cfg.RedisDB = appConfig.Queue.RedisDB
	}
	if flag.Lookup("queue-concurrency").DefValue == fmt.Sprint(cfg.QueueConcurrency) && appConfig.Queue.Concurrency > 0 {
		cfg.QueueConcurrency = appConfig.Queue.Concurrency
	}
	if flag.Lookup("queue-retry").DefValue == fmt.Sprint(cfg.QueueRetryLimit) && appConfig.Queue.RetryLimit > 0 {
		cfg.QueueRetryLimit = appConfig.Queue.RetryLimit
	}
	if appConfig.Queue.RetryDelay > 0 {
		cfg.QueueRetryDelay = time.Duration(appConfig.Queue.RetryDelay) * time.Second
	}
}

// setupLogger 设置日志系统
func setupLogger(cfg config) *logrus.Logger {
	logger := middleware.GetLogger()

	// 设置日志级别
	switch cfg.LogLevel {
	case "debug":
		logger.SetLevel(logrus.DebugLevel)
	case "info":
		logger.SetLevel(logrus.InfoLevel)
	case "warn":
		logger.SetLevel(logrus.WarnLevel)
	case "error":
		logger.SetLevel(logrus.ErrorLevel)
	default:
		logger.SetLevel(logrus.InfoLevel)
	}

	// 配置日志文件轮转
	if cfg.LogFile != "" {
		middleware.ConfigureLogFile(cfg.LogFile)
	}

	return logger
}

// setupStorage 设置文件存储服务
func setupStorage(cfg config) (storage.Storage, error) {
	if cfg.StorageType == "minio" {
		if cfg.fileConfig == nil {
			return nil, fmt.Errorf("minio storage requires a config file with endpoint and credentials")
		}
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.fileConfig.Storage.Endpoint,
			AccessKey: cfg.fileConfig.Storage.AccessKey,
			SecretKey: cfg.fileConfig.Storage.SecretKey,
			UseSSL:    cfg.fileConfig.Storage.UseSSL,
			Bucket:    cfg.fileConfig.Storage.Bucket,
		})
	}

	// 确保存储目录存在
	if err := os.MkdirAll(cfg.StoragePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}

	// 创建本地存储
	return storage.NewLocalStorage(storage.LocalConfig{
		Path: cfg.StoragePath,
	})
}

// setupVectorDB 设置向量数据库
func setupVectorDB(cfg config) (vectordb.Repository, error) {
	// 确保向量数据库目录存在
	if err := os.MkdirAll(filepath.Dir(cfg.VectorDBPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create vector database directory: %v", err)
	}

	// 尝试创建FAISS向量数据库
	faissConfig := vectordb.Config{
		Type:              "faiss",
		Path:              cfg.VectorDBPath,
		Dimension:         cfg.VectorDimension,
		DistanceType:      vectordb.Cosine,
		CreateIfNotExists: true,
	}

	repo, err := vectordb.NewRepository(faissConfig)
	if err != nil {
		// 如果FAISS初始化失败，回退到内存实现
		log.Printf("Warning: Failed to initialize FAISS vector database: %v", err)
		log.Printf("Falling back to in-memory vector database")

		memoryConfig := vectordb.Config{
			Type:         "memory",
			Dimension:    cfg.VectorDimension,
			DistanceType: vectordb.Cosine,
		}
		return vectordb.NewRepository(memoryConfig)
	}

	return repo, nil
}

// setupEmbedding 设置嵌入模型客户端
func setupEmbedding(cfg config) (embedding.Client, error) {
	if cfg.EmbeddingAPIKey == "" {
		return nil, fmt.Errorf("embedding API key is required")
	}

	return embedding.NewClient("openai",
		embedding.WithAPIKey(cfg.EmbeddingAPIKey),
		embedding.WithModel(cfg.EmbeddingModel),
		embedding.WithDimensions(cfg.VectorDimension),
	)
}

// setupLLM 设置大语言模型客户端
func setupLLM(cfg config) (llm.Client, error) {
	if cfg.LLMAPIKey == "" {
		return nil, fmt.Errorf("LLM API key is required")
	}

	return llm.NewClient("openai",
		llm.WithAPIKey(cfg.LLMAPIKey),
		llm.WithModel(cfg.LLMModel),
		llm.WithMaxTokens(2048),
		llm.WithTemperature(0.7),
	)
}

// setupCache 设置缓存服务
func setupCache(cfg config) (cache.Cache, error) {
	cacheConfig := cache.Config{
		Type:            cfg.CacheType,
		DefaultTTL:      24 * time.Hour,
		CleanupInterval: 10 * time.Minute,
	}

	// 如果配置了Redis，添加Redis配置
	if cfg.CacheType == "redis" {
		cacheConfig.RedisAddr = cfg.RedisAddr
		cacheConfig.RedisPassword = cfg.RedisPassword
	}

	return cache.NewCache(cacheConfig)
}

// setupDatabase 设置数据库
func setupDatabase(cfg config, logger *logrus.Logger) error {
	dbPath := filepath.Join(cfg.DataDir, "meetingqa.db")
	if cfg.fileConfig != nil && cfg.fileConfig.Database.DSN != "" {
		dbPath = cfg.fileConfig.Database.DSN
	}

	// 确保数据目录存在
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return fmt.Errorf("failed to create database directory: %v", err)
	}

	// 初始化数据库
	dbConfig := &database.Config{
		Type: "sqlite",
		DSN:  dbPath,
	}

	return database.Setup(dbConfig, logger)
}

// setupTaskQueue 设置任务队列
func setupTaskQueue(cfg config, logger *logrus.Logger) (taskqueue.Queue, error) {
	if !cfg.QueueEnabled {
		return nil, nil
	}

	// 根据配置创建任务队列
	queueConfig := &taskqueue.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.QueueConcurrency,
		RetryLimit:    cfg.QueueRetryLimit,
		RetryDelay:    cfg.QueueRetryDelay,
	}

	logger.WithFields(logrus.Fields{
		"type":        cfg.QueueType,
		"redis_addr":  cfg.RedisAddr,
		"concurrency": cfg.QueueConcurrency,
		"retry_limit": cfg.QueueRetryLimit,
	}).Info("Setting up task queue")

	return taskqueue.NewQueue(cfg.QueueType, queueConfig)
}

// startWorker 启动任务队列工作者并注册转写任务处理器
func startWorker(queue taskqueue.Queue, cfg config, transcriptService *services.TranscriptService, logger *logrus.Logger) (taskqueue.Worker, error) {
	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		return nil, fmt.Errorf("task queue worker requires a redis queue, got %T", queue)
	}

	worker := taskqueue.NewRedisWorker(redisQueue, &taskqueue.Config{
		RedisAddr:     cfg.RedisAddr,
		RedisPassword: cfg.RedisPassword,
		RedisDB:       cfg.RedisDB,
		Concurrency:   cfg.QueueConcurrency,
		RetryLimit:    cfg.QueueRetryLimit,
		RetryDelay:    cfg.QueueRetryDelay,
	})

	taskHandler := services.NewTranscriptTaskHandler(transcriptService, logger)
	for _, taskType := range taskHandler.GetTaskTypes() {
		worker.RegisterHandler(taskType, taskHandler)
	}

	if err := worker.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker: %v", err)
	}

	logger.WithField("concurrency", cfg.QueueConcurrency).Info("Task queue worker started")
	return worker, nil
}

// loadCorpus 批量加载语料目录中的MRT文件并写入向量库
func loadCorpus(ctx context.Context, cfg config, parser *transcript.Parser, splitter *transcript.Splitter, embedder embedding.Client, vectorDB vectordb.Repository, logger *logrus.Logger) error {
	loader := transcript.NewLoader(parser, logger)

	start := time.Now()
	documents, stats, err := loader.LoadDir(cfg.CorpusDir)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"dir":          cfg.CorpusDir,
		"files_total":  stats.FilesTotal,
		"files_loaded": stats.FilesLoaded,
		"utterances":   stats.TotalUtterances,
		"speakers":     len(stats.Speakers),
	}).Info("Corpus loaded, indexing transcripts")

	totalChunks := 0
	for _, doc := range documents {
		segments := splitter.Split(doc.Text)
		if len(segments) == 0 {
			continue
		}

		vectors, err := embedder.EmbedBatch(ctx, segments)
		if err != nil {
			return fmt.Errorf("failed to embed corpus document %s: %w", doc.MeetingID, err)
		}
		if len(vectors) != len(segments) {
			return fmt.Errorf("embedding count mismatch for %s: got %d vectors for %d segments", doc.MeetingID, len(vectors), len(segments))
		}

		meetingType := ""
		if len(doc.MeetingID) >= 3 {
			meetingType = doc.MeetingID[1:3]
		}

		chunks := make([]vectordb.Chunk, len(segments))
		for i, segment := range segments {
			metadata := map[string]interface{}{
				"meeting_id":   doc.MeetingID,
				"meeting_type": meetingType,
			}
			for k, v := range doc.Metadata {
				metadata[k] = v
			}

			chunks[i] = vectordb.Chunk{
				ID:           fmt.Sprintf("corpus-%s_%d", doc.MeetingID, i),
				TranscriptID: "corpus-" + doc.MeetingID,
				MeetingID:    doc.MeetingID,
				FileName:     doc.MeetingID + ".mrt",
				Position:     i,
				Text:         segment,
				Vector:       vectors[i],
				CreatedAt:    time.Now(),
				Metadata:     metadata,
			}
		}

		if err := vectorDB.AddBatch(chunks); err != nil {
			return fmt.Errorf("failed to index corpus document %s: %w", doc.MeetingID, err)
		}
		totalChunks += len(chunks)
	}

	logger.WithFields(logrus.Fields{
		"documents": len(documents),
		"chunks":    totalChunks,
		"elapsed":   time.Since(start).Round(time.Millisecond).String(),
	}).Info("Corpus indexing finished")

	return nil
}
