package milvus

import (
	"Minerva/internal/config"
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient 包含了 Milvus 客户端实例和相关配置。集合中只保存
// (id, owner_id, embedding) 三元组作为近似最近邻索引层；完整的记忆
// 记录存放在文档库中。
type MilvusClient struct {
	Client client.Client        // Milvus 客户端实例。
	Config *config.MilvusConfig // Milvus 配置。
}

// Neighbor 是一次近似最近邻查询返回的一个命中。
type Neighbor struct {
	ID    string  // 记忆记录 ID。
	Score float64 // 相似度分数（COSINE 度量下越大越相似）。
}

// GetClient 使用单例模式创建并返回一个 Milvus 客户端实例。
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 Milvus: %w", err)
			return
		}
		log.Println("✅ 成功连接到 Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Close 安全地关闭与 Milvus 的连接。
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ 已安全关闭 Milvus 连接。")
	}
}

// HealthCheck 检查 Milvus 连接的健康状况。
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("Milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("Milvus health check failed: %w", err)
	}
	return nil
}

// Insert 将一条记忆记录的向量写入索引集合。
func (c *MilvusClient) Insert(ctx context.Context, memoryID, ownerID string, vector []float32) error {
	idCol := entity.NewColumnVarChar("id", []string{memoryID})
	ownerCol := entity.NewColumnVarChar("owner_id", []string{ownerID})
	vectorCol := entity.NewColumnFloatVector(c.Config.Schema.VectorField, len(vector), [][]float32{vector})

	collName := c.Config.Schema.CollectionName
	if _, err := c.Client.Insert(ctx, collName, "", idCol, ownerCol, vectorCol); err != nil {
		return fmt.Errorf("failed to insert vector into Milvus: %w", err)
	}
	return nil
}

// SearchByOwner 在指定用户的向量中执行近似最近邻查询。
func (c *MilvusClient) SearchByOwner(ctx context.Context, ownerID string, vector []float32, topK int) ([]Neighbor, error) {
	collName := c.Config.Schema.CollectionName

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return nil, fmt.Errorf("加载集合 '%s' 失败: %w", collName, err)
	}

	sp, _ := entity.NewIndexIvfFlatSearchParam(10)
	expr := fmt.Sprintf("owner_id == \"%s\"", ownerID)

	results, err := c.Client.Search(
		ctx,
		collName,
		nil,
		expr,
		[]string{"id"},
		[]entity.Vector{entity.FloatVector(vector)},
		c.Config.Schema.VectorField,
		entity.MetricType(c.Config.Schema.Index.MetricType),
		topK,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("向量检索失败: %w", err)
	}

	metric := entity.MetricType(c.Config.Schema.Index.MetricType)
	var neighbors []Neighbor
	for _, result := range results {
		for i := 0; i < result.ResultCount; i++ {
			id, err := result.IDs.GetAsString(i)
			if err != nil {
				continue
			}
			score := float64(result.Scores[i])
			// COSINE 原始分数在 [-1,1]，映射到检索合并所用的 [0,1] 刻度。
			if metric == entity.COSINE {
				score = (score + 1) / 2
			}
			neighbors = append(neighbors, Neighbor{
				ID:    id,
				Score: score,
			})
		}
	}
	return neighbors, nil
}

// Delete 按记录 ID 删除向量。
func (c *MilvusClient) Delete(ctx context.Context, memoryID string) error {
	collName := c.Config.Schema.CollectionName
	expr := fmt.Sprintf("id == \"%s\"", memoryID)
	if err := c.Client.Delete(ctx, collName, "", expr); err != nil {
		return fmt.Errorf("failed to delete vector from Milvus: %w", err)
	}
	return nil
}

// EnsureCollection 确保 Milvus 集合存在并已加载。
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.Schema.CollectionName
	exists, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("检查集合是否存在时出错: %w", err)
	}
	if !exists {
		schemaFields := make([]*entity.Field, 0, len(c.Config.Schema.Fields))
		for _, fieldCfg := range c.Config.Schema.Fields {
			field := entity.NewField().WithName(fieldCfg.Name)

			if fieldCfg.IsPrimaryKey {
				field = field.WithIsPrimaryKey(true)
			}

			switch fieldCfg.DataType {
			case "Int64":
				field = field.WithDataType(entity.FieldTypeInt64)
			case "VarChar":
				field = field.WithDataType(entity.FieldTypeVarChar).WithMaxLength(int64(fieldCfg.MaxLength))
			case "FloatVector":
				field = field.WithDataType(entity.FieldTypeFloatVector).WithDim(int64(fieldCfg.Dim))
			default:
				return fmt.Errorf("不支持的数据类型: %s", fieldCfg.DataType)
			}

			schemaFields = append(schemaFields, field)
		}

		schema := entity.NewSchema().
			WithName(collName).
			WithDescription(c.Config.Schema.Description)

		for _, field := range schemaFields {
			schema = schema.WithField(field)
		}

		if err := c.Client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("创建集合失败: %w", err)
		}
		idx, err := c.buildIndexFromConfig()
		if err != nil {
			return err
		}
		if err := c.Client.CreateIndex(ctx, collName, c.Config.Schema.Index.FieldName, idx, false); err != nil {
			return fmt.Errorf("为字段 '%s' 创建索引失败: %w", c.Config.Schema.Index.FieldName, err)
		}
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("加载 Milvus 集合 '%s' 失败: %w", collName, err)
	}

	return nil
}

// buildIndexFromConfig 是一个辅助函数，用于从配置构建索引实体。
func (c *MilvusClient) buildIndexFromConfig() (entity.Index, error) {
	indexCfg := c.Config.Schema.Index
	metricType := entity.MetricType(indexCfg.MetricType)

	switch indexCfg.IndexType {
	case "IVF_FLAT":
		nlist, ok := indexCfg.Params["nlist"].(int)
		if !ok {
			nlist = 128
		}
		return entity.NewIndexIvfFlat(metricType, nlist)
	case "HNSW":
		M, ok := indexCfg.Params["M"].(int)
		if !ok {
			M = 8
		}
		efConstruction, ok := indexCfg.Params["efConstruction"].(int)
		if !ok {
			efConstruction = 96
		}
		return entity.NewIndexHNSW(metricType, M, efConstruction)
	case "AUTOINDEX":
		return entity.NewIndexAUTOINDEX(metricType)
	default:
		return nil, fmt.Errorf("不支持的索引类型: %s", indexCfg.IndexType)
	}
}
