package main

import (
	"Minerva/internal/api"
	"Minerva/internal/config"
	"Minerva/internal/contextopt"
	"Minerva/internal/database/kafka"
	"Minerva/internal/database/milvus"
	"Minerva/internal/database/mongo"
	"Minerva/internal/database/redis"
	"Minerva/internal/gateway"
	"Minerva/internal/memory"
	"Minerva/internal/memory/consumer"
	"Minerva/internal/orchestrator"
	"Minerva/internal/validator"
	"Minerva/internal/websearch"
	"Minerva/pkg/logger"
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Initialize logger
	level, err := logrus.ParseLevel(cfg.Logger.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.Init(level)
	appLogger := logger.New("orchestrator_service", "", "")
	appLogger.Info("Logger initialized")

	// Provider gateway: ordered embedding/completion candidates behind
	// per-provider circuit breakers.
	gw, err := gateway.New(cfg.Gateway, appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}
	appLogger.Info("Provider gateway initialized")

	// Memory persistence: MongoDB with an optional Milvus ANN tier.
	// Without a configured MongoDB address everything stays in process.
	persist := buildPersistence(cfg, appLogger)
	memoryService := memory.NewService(persist, gw, appLogger)

	sweeper := memory.NewSweeper(memoryService,
		config.Duration(cfg.Memory.SweepInterval, time.Minute),
		config.Duration(cfg.Memory.SweepGrace, 5*time.Minute),
		appLogger)
	sweeper.OnSweep(gw.ResetStale)
	sweeper.Start()
	defer sweeper.Stop()
	appLogger.Info("Memory sweeper started")

	// Web-search decision engine with Redis as the second cache tier.
	var redisClient *goredis.Client
	if cfg.Databases.Redis.Address != "" {
		redisClient, err = redis.GetClient(&cfg.Databases.Redis)
		if err != nil {
			appLogger.Warn("Redis unavailable, decision cache is in-process only: " + err.Error())
			redisClient = nil
		}
	}
	searchEngine, err := websearch.NewEngine(cfg.WebSearch, redisClient, appLogger)
	if err != nil {
		appLogger.Fatal(err.Error())
	}

	// Memory write-back: through Kafka when brokers are configured,
	// direct otherwise. The consumer drains the topic into the store.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder orchestrator.InteractionRecorder = orchestrator.NewDirectRecorder(memoryService)
	if len(cfg.Databases.Kafka.Brokers) > 0 {
		kafkaClient, err := kafka.GetClient(&cfg.Databases.Kafka)
		if err != nil {
			appLogger.Warn("Kafka unavailable, falling back to direct write-back: " + err.Error())
		} else {
			recorder = orchestrator.NewKafkaRecorder(kafkaClient)
			writeback := consumer.NewConsumer(kafkaClient, memoryService, appLogger)
			go func() {
				if err := writeback.Run(ctx); err != nil {
					appLogger.Error(err.Error())
				}
			}()
			defer kafkaClient.Close()
		}
	}

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Gateway:   gw,
		Memory:    memoryService,
		Optimizer: contextopt.New(cfg.Context),
		Search:    searchEngine,
		Validator: validator.New(cfg.Validator),
		Recorder:  recorder,
		Log:       appLogger,
	}, cfg.Memory, cfg.Classifier)
	appLogger.Info("Dependencies injected")

	// Setup and start Gin router with graceful shutdown.
	router := api.SetupRouter(api.NewHandler(engine, gw), cfg.Server)
	address := cfg.Server.Address
	if address == "" {
		address = ":8080"
	}
	server := &http.Server{Addr: address, Handler: router}

	go func() {
		appLogger.Info("Starting server on " + address)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal(err.Error())
		}
	}()

	<-ctx.Done()
	appLogger.Info("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("Server shutdown error: " + err.Error())
	}
	appLogger.Info("Server stopped")
}

// buildPersistence wires the document store. An empty MongoDB address
// selects the in-process store; an empty Milvus address disables the
// ANN tier and retrieval degrades to brute-force and lexical passes.
func buildPersistence(cfg *config.AppConfig, appLogger *logger.Logger) memory.Persistence {
	if cfg.Databases.Mongo.Address == "" {
		appLogger.Warn("MongoDB not configured, memory store is in-process only")
		return memory.NewInMemoryStore()
	}

	mongoClient, err := mongo.GetClient(&cfg.Databases.Mongo)
	if err != nil {
		appLogger.Warn("MongoDB unavailable, memory store is in-process only: " + err.Error())
		return memory.NewInMemoryStore()
	}

	var ann *milvus.MilvusClient
	if cfg.Databases.Milvus.Address != "" {
		ann, err = milvus.GetClient(context.Background(), &cfg.Databases.Milvus)
		if err != nil {
			appLogger.Warn("Milvus unavailable, vector tier disabled: " + err.Error())
			ann = nil
		} else if err := ann.EnsureCollection(context.Background()); err != nil {
			appLogger.Warn("Milvus collection setup failed, vector tier disabled: " + err.Error())
			ann = nil
		}
	}

	coll := mongoClient.Database(cfg.Databases.Mongo.Database).Collection(cfg.Databases.Mongo.Collection)
	return memory.NewDocumentStore(coll, ann)
}
