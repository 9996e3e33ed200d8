package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"shopping-assistant-pipeline/internal/config"
	"shopping-assistant-pipeline/internal/models"
	"shopping-assistant-pipeline/internal/pkg/logger"
)

const stageUpdateStreamMaxLen = 1024

// RedisService stores workflow snapshots and streams stage updates.
type RedisService struct {
	client *redis.Client
	logger *logger.Logger
	config config.RedisConfig
}

func NewRedisService(cfg config.RedisConfig, log *logger.Logger) (*RedisService, error) {
	opt, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid Redis URL : %w", err)
	}
	configureRedisOptions(opt, cfg)

	service := &RedisService{
		client: redis.NewClient(opt),
		logger: log,
		config: cfg,
	}

	if err := service.testConnection(); err != nil {
		_ = service.client.Close()
		return nil, fmt.Errorf("connection to Redis failed: %w", err)
	}

	log.Info("Redis Service Initialized Successfully",
		"addr", opt.Addr,
		"db", opt.DB,
		"pool_size", cfg.PoolSize)

	return service, nil
}

// NewRedisServiceWithClient wraps an existing client without pinging it.
func NewRedisServiceWithClient(client *redis.Client, cfg config.RedisConfig, log *logger.Logger) *RedisService {
	return &RedisService{client: client, logger: log, config: cfg}
}

func configureRedisOptions(opt *redis.Options, cfg config.RedisConfig) {
	if cfg.PoolSize > 0 {
		opt.PoolSize = cfg.PoolSize
	}
	if cfg.ReadTimeout > 0 {
		opt.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opt.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.DialTimeout > 0 {
		opt.DialTimeout = cfg.DialTimeout
	}
}

func (service *RedisService) testConnection() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := service.client.Ping(ctx).Err(); err != nil {
		return err
	}
	service.logger.Info("Redis Service Connection Tested Successfully")
	return nil
}

func (service *RedisService) Client() *redis.Client {
	return service.client
}

func (service *RedisService) Close() error {
	service.logger.Info("Closing Redis Service")
	if err := service.client.Close(); err != nil {
		return fmt.Errorf("Error closing Redis connection : %w", err)
	}
	service.logger.Info("Redis Service Closed Successfully")
	return nil
}

func (service *RedisService) PublishStageUpdate(ctx context.Context, update *models.StageUpdate) error {
	streamName := fmt.Sprintf("workflow:%s:updates", update.WorkflowID)

	values := map[string]any{
		"type":        "stage_update",
		"workflow_id": update.WorkflowID,
		"request_id":  update.RequestID,
		"stage":       string(update.Stage),
		"status":      string(update.Status.State),
		"detail":      update.Status.Detail,
		"progress":    fmt.Sprintf("%.2f", update.Progress),
		"timestamp":   update.Timestamp.Format(time.RFC3339),
	}

	messageID, err := service.client.XAdd(ctx, &redis.XAddArgs{
		Stream: streamName,
		Values: values,
		MaxLen: stageUpdateStreamMaxLen,
		Approx: true,
	}).Result()
	if err != nil {
		service.logger.LogService("redis", "publish_stage_update", 0, map[string]any{
			"stream_name": streamName,
			"stage":       update.Stage,
			"workflow_id": update.WorkflowID,
		}, err)
		return models.NewExternalError("REDIS_PUBLISH_FAILED", "Failed to publish stage update").WithCause(err)
	}

	service.logger.WithFields(logger.Fields{
		"stream_name": streamName,
		"message_id":  messageID,
		"stage":       update.Stage,
		"status":      update.Status.String(),
		"workflow_id": update.WorkflowID,
	}).Debug("Published Stage Update Successfully")

	return nil
}

func (service *RedisService) StoreWorkflowState(ctx context.Context, state *models.WorkflowState) error {
	key := workflowStateKey(state.ID)
	startTime := time.Now()

	stateJSON, err := json.Marshal(state)
	if err != nil {
		return models.NewInternalError("SERIALIZATION_FAILED", "Failed to serialize workflow state").WithCause(err)
	}

	if err := service.client.Set(ctx, key, stateJSON, service.config.StateTTL).Err(); err != nil {
		service.logger.LogService("redis", "store_workflow_state", time.Since(startTime), map[string]any{
			"workflow_id": state.ID,
			"key":         key,
		}, err)
		return models.NewExternalError("REDIS_STORE_FAILED", "Failed to store workflow state").WithCause(err)
	}

	service.logger.LogService("redis", "store_workflow_state", time.Since(startTime), map[string]any{
		"workflow_id": state.ID,
		"bytes":       len(stateJSON),
	}, nil)

	return nil
}

func (service *RedisService) GetWorkflowState(ctx context.Context, workflowID string) (*models.WorkflowState, error) {
	key := workflowStateKey(workflowID)
	startTime := time.Now()

	stateJSON, err := service.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, models.ErrWorkflowNotFound.WithMetadata("workflow_id", workflowID)
		}
		service.logger.LogService("redis", "get_workflow_state", time.Since(startTime), map[string]any{
			"workflow_id": workflowID,
			"key":         key,
		}, err)
		return nil, models.NewExternalError("REDIS_GET_FAILED", "Failed to get workflow state").WithCause(err)
	}

	var state models.WorkflowState
	if err := json.Unmarshal(stateJSON, &state); err != nil {
		return nil, models.NewInternalError("DESERIALIZATION_FAILED", "Failed to deserialize workflow state").WithCause(err)
	}

	service.logger.LogService("redis", "get_workflow_state", time.Since(startTime), map[string]any{
		"workflow_id": workflowID,
	}, nil)

	return &state, nil
}

func (service *RedisService) HealthCheck(ctx context.Context) error {
	if err := service.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("Redis Connection Unhealthy: %w", err)
	}
	return nil
}

func workflowStateKey(workflowID string) string {
	return fmt.Sprintf("workflow:%s:state", workflowID)
}
