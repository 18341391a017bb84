package main

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis hashes holding each collection, plus the ids sequences.
const (
	HBooks      string = "books"
	HCategories string = "categories"
	HUsers      string = "users"
	HLoans      string = "loans"
	HSequences  string = "sequences"
)

type redisRecordStorage[T Record] struct {
	logger *zap.Logger
	client *redis.Client
	hash   string
}

// NewRedisRecordStorage provides a redis-based storage of records kept in the given hash.
func NewRedisRecordStorage[T Record](logger *zap.Logger, client *redis.Client, hash string) RecordStore[T] {
	return &redisRecordStorage[T]{
		logger: logger,
		client: client,
		hash:   hash,
	}
}

// NewRedisStorage provides all the library collections backed by redis.
func NewRedisStorage(logger *zap.Logger, client *redis.Client) *Storage {
	return &Storage{
		Books:      NewRedisRecordStorage[Book](logger, client, HBooks),
		Categories: NewRedisRecordStorage[Category](logger, client, HCategories),
		Users:      NewRedisRecordStorage[User](logger, client, HUsers),
		Loans:      NewRedisRecordStorage[Loan](logger, client, HLoans),
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// NextID allocates the next id of the collection.
func (rs *redisRecordStorage[T]) NextID(ctx context.Context) (int64, error) {
	return rs.client.HIncrBy(ctx, HSequences, rs.hash, 1).Result()
}

// Save inserts or replaces a record.
func (rs *redisRecordStorage[T]) Save(ctx context.Context, record T) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return rs.client.HSet(ctx, rs.hash, strconv.FormatInt(record.Key(), 10), data).Err()
}

// GetOne retrieves a record based on its ID.
func (rs *redisRecordStorage[T]) GetOne(ctx context.Context, id int64) (T, error) {
	var record T
	data, err := rs.client.HGet(ctx, rs.hash, strconv.FormatInt(id, 10)).Result()
	if err == redis.Nil {
		return record, ErrRecordNotFound
	}
	if err != nil {
		return record, err
	}
	err = json.Unmarshal([]byte(data), &record)
	return record, err
}

// GetAll retrieves all records of the collection ordered by id.
func (rs *redisRecordStorage[T]) GetAll(ctx context.Context) ([]T, error) {
	values, err := rs.client.HVals(ctx, rs.hash).Result()
	if err != nil {
		return nil, err
	}
	records := make([]T, 0, len(values))
	for _, data := range values {
		var record T
		if err = json.Unmarshal([]byte(data), &record); err != nil {
			rs.logger.Error("redis: failed to decode record", zap.String("hash", rs.hash), zap.Error(err))
			return nil, err
		}
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Key() < records[j].Key() })
	return records, nil
}

// Delete removes a record based on its ID.
func (rs *redisRecordStorage[T]) Delete(ctx context.Context, id int64) error {
	n, err := rs.client.HDel(ctx, rs.hash, strconv.FormatInt(id, 10)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}
