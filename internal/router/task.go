package router

import (
	"log"

	"github.com/deepresearch-go/pipeline/internal/config"
	"github.com/deepresearch-go/pipeline/internal/jobs"
	"github.com/hibiken/asynq"
	"go.uber.org/dig"
)

type AsynqTaskParams struct {
	dig.In

	Server  *asynq.Server
	Handler *jobs.Handler
}

func asynqRedisClientOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func NewAsyncqClient(cfg *config.Config) *asynq.Client {
	return asynq.NewClient(asynqRedisClientOpt(cfg))
}

func NewAsynqServer(cfg *config.Config) *asynq.Server {
	queues := cfg.Asynq.Queues
	if len(queues) == 0 {
		queues = map[string]int{"critical": 6, "default": 3, "low": 1}
	}
	return asynq.NewServer(asynqRedisClientOpt(cfg), asynq.Config{Queues: queues})
}

// RunAsynqServer starts the asynq worker that pulls queued research tasks
// back off the queue and drives them through the orchestrator.
func RunAsynqServer(params AsynqTaskParams) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(jobs.TypeResearchExecute, params.Handler.Execute)

	go func() {
		if err := params.Server.Run(mux); err != nil {
			log.Fatalf("could not run asynq server: %v", err)
		}
	}()
	return mux
}
