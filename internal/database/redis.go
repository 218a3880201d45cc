package database

import (
	"context"
	"log"

	"github.com/go-redis/redis/v8"
	"github.com/spf13/viper"
)

// InitRedis returns a client when REDIS_HOST is configured and reachable,
// nil otherwise. Callers fall back to Postgres-backed state on nil.
func InitRedis() *redis.Client {
	host := viper.GetString("redis.host")
	if host == "" {
		log.Println("Redis not configured")
		return nil
	}
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)

	rdb := redis.NewClient(&redis.Options{
		Addr:     host + ":" + viper.GetString("redis.port"),
		Password: viper.GetString("redis.password"),
		DB:       viper.GetInt("redis.db"),
	})

	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Printf("Redis connection failed, continuing without Redis: %v", err)
		rdb.Close()
		return nil
	}

	log.Println("Redis connection established")
	return rdb
}
