// Command worker is the queue-driven entrypoint: it consumes addresses
// from a Redis list, runs them through the cache-backed probe pipeline,
// persists verdicts, and re-queues greylisted addresses for a later
// retry — the same BRPOP + ZSET pattern the original worker's main.go
// used, now wired against internal/orchestrator and internal/cache
// instead of a single SMTP-check function.
package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"validator-worker/internal/cache"
	"validator-worker/internal/config"
	"validator-worker/internal/domainlist"
	"validator-worker/internal/mxresolve"
	"validator-worker/internal/orchestrator"
	"validator-worker/internal/racer"
	"validator-worker/internal/ratelimit"
	"validator-worker/internal/smtpsession"
	"validator-worker/internal/store"
	"validator-worker/internal/verdict"
)

const (
	workerCount        = 50
	addressQueue       = "email_queue"
	retryQueue         = "email_retry_queue" // Redis ZSET for greylisting retries
	retryDelaySeconds  = 900                 // 15 minutes
	retryCheckInterval = 30 * time.Second
)

// addressJob mirrors the original worker's EmailJob wire shape so
// producers enqueuing into email_queue don't need to change.
type addressJob struct {
	JobID   string `json:"jobId"`
	Address string `json:"email"`
}

func main() {
	fmt.Println("🚀 Starting recipient verification worker...")

	cfg := config.Load()
	fmt.Printf("🆔 Worker hostname: %s\n", cfg.WorkerHostname)

	ctx := context.Background()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if _, err := redisClient.Ping(ctx).Result(); err != nil {
		log.Fatalf("❌ failed to connect to Redis: %v", err)
	}
	fmt.Println("✅ Connected to Redis")

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ failed to open PostgreSQL connection: %v", err)
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		log.Fatalf("❌ failed to ping PostgreSQL: %v", err)
	}
	fmt.Println("✅ Connected to PostgreSQL")

	primaryStore := store.NewPostgresStore(db)

	runner := smtpsession.NewRunner(cfg.SMTPTimeout, cfg.HeloName, cfg.MailFrom)
	if cfg.SOCKS5ProxyAddr != "" {
		dialer, err := smtpsession.NewSOCKS5Dialer(cfg.SOCKS5ProxyAddr, cfg.SOCKS5ProxyUser, cfg.SOCKS5ProxyPassword)
		if err != nil {
			log.Fatalf("❌ failed to configure SOCKS5 proxy: %v", err)
		}
		runner.Dialer = dialer
		fmt.Printf("🔌 SOCKS5 proxy configured: %s\n", cfg.SOCKS5ProxyAddr)
	} else {
		log.Printf("⚠️  SOCKS5_PROXY not set - probing directly from this host's IP")
	}

	classifier := domainlist.Classifier{
		Whitelist:  domainlist.NewSet(cfg.WhitelistDomains),
		Disposable: domainlist.NewSet(cfg.DisposableDomains),
		Blacklist:  domainlist.NewSet(cfg.BlacklistDomains),
	}
	resolver := mxresolve.New(nil)
	limiter := ratelimit.NewManager(10, 10) // global safety valve, independent of any per-domain limit

	orch := orchestrator.New(classifier, resolver, runner, limiter, racer.DefaultPorts)

	probe := func(ctx context.Context, address string) verdict.Verdict {
		return orch.Categorize(ctx, address)
	}
	resultCache := cache.New(redisClient, cfg.CacheTTL, probe, primaryStore)

	jobChan := make(chan addressJob, workerCount*2)
	for i := 0; i < workerCount; i++ {
		go runWorker(ctx, i+1, jobChan, redisClient, resultCache)
	}
	fmt.Printf("✅ started %d workers\n", workerCount)
	fmt.Println("📬 listening for addresses in queue:", addressQueue)

	go retryMonitor(ctx, redisClient)
	fmt.Println("🔄 retry monitor started (checking every 30 seconds)")

	go refreshDriver(ctx, resultCache, cfg.RefreshInterval)

	for {
		if err := limiter.WaitGlobal(ctx); err != nil {
			log.Printf("⚠️  global rate limit wait cancelled: %v", err)
			continue
		}

		result, err := redisClient.BRPop(ctx, 5*time.Second, addressQueue).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			log.Printf("⚠️  error reading from Redis: %v", err)
			time.Sleep(time.Second)
			continue
		}
		if len(result) < 2 {
			log.Printf("⚠️  invalid queue result: %v", result)
			continue
		}

		var job addressJob
		if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
			log.Printf("⚠️  failed to parse job JSON: %v", err)
			continue
		}

		select {
		case jobChan <- job:
		default:
			log.Printf("⚠️  worker pool full, dropping job: %s", job.Address)
		}
	}
}

func runWorker(ctx context.Context, id int, jobs <-chan addressJob, redisClient *redis.Client, resultCache *cache.Cache) {
	for job := range jobs {
		processJob(ctx, id, job, redisClient, resultCache)
	}
}

func processJob(ctx context.Context, workerID int, job addressJob, redisClient *redis.Client, resultCache *cache.Cache) {
	fmt.Printf("[worker %d] 🔍 checking: %s\n", workerID, job.Address)

	v, err := resultCache.Fetch(ctx, job.Address)
	if err != nil {
		log.Printf("[worker %d] ❌ fetch error for %s: %v", workerID, job.Address, err)
		return
	}

	if v.Status == verdict.StatusTemporaryFailure || v.Category == verdict.CategoryGreylisted {
		requeueForRetry(ctx, redisClient, job)
		log.Printf("[worker %d] ⏳ greylisted: %s (code %d) - queued for retry", workerID, job.Address, v.SmtpCode)
		return
	}

	emoji := statusEmoji(v.Category)
	fmt.Printf("[worker %d] %s %s: %s (code %d)\n", workerID, emoji, v.Category, job.Address, v.SmtpCode)
}

func requeueForRetry(ctx context.Context, redisClient *redis.Client, job addressJob) {
	jobJSON, err := json.Marshal(job)
	if err != nil {
		log.Printf("⚠️  failed to serialize job for retry queue: %v", err)
		return
	}
	retryTime := time.Now().Unix() + retryDelaySeconds
	if err := redisClient.ZAdd(ctx, retryQueue, redis.Z{
		Score:  float64(retryTime),
		Member: string(jobJSON),
	}).Err(); err != nil {
		log.Printf("⚠️  failed to add to retry queue: %v", err)
	}
}

// retryMonitor moves addresses whose retry delay has elapsed back onto
// the main queue, the same ZSET-polling pattern the original worker used.
func retryMonitor(ctx context.Context, redisClient *redis.Client) {
	ticker := time.NewTicker(retryCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			now := time.Now().Unix()
			items, err := redisClient.ZRangeByScore(ctx, retryQueue, &redis.ZRangeBy{
				Min: "-inf",
				Max: fmt.Sprintf("%d", now),
			}).Result()
			if err != nil {
				log.Printf("⚠️  error reading retry queue: %v", err)
				continue
			}
			if len(items) == 0 {
				continue
			}
			log.Printf("🔄 %d address(es) ready for retry", len(items))

			for _, itemJSON := range items {
				var job addressJob
				if err := json.Unmarshal([]byte(itemJSON), &job); err != nil {
					log.Printf("⚠️  failed to parse retry job JSON: %v", err)
					redisClient.ZRem(ctx, retryQueue, itemJSON)
					continue
				}
				if removed, err := redisClient.ZRem(ctx, retryQueue, itemJSON).Result(); err != nil || removed == 0 {
					log.Printf("⚠️  failed to remove item from retry queue: %v", err)
					continue
				}
				if err := redisClient.LPush(ctx, addressQueue, itemJSON).Err(); err != nil {
					log.Printf("⚠️  failed to push retry job to queue: %v", err)
					redisClient.ZAdd(ctx, retryQueue, redis.Z{Score: float64(now + retryDelaySeconds), Member: itemJSON})
					continue
				}
				log.Printf("🔄 retrying: %s (job %s)", job.Address, job.JobID)
			}

		case <-ctx.Done():
			return
		}
	}
}

// refreshDriver periodically re-probes every expired cache row, the
// scheduled maintenance task.
func refreshDriver(ctx context.Context, resultCache *cache.Cache, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := resultCache.RefreshExpired(ctx)
			if err != nil {
				log.Printf("⚠️  refresh pass failed: %v", err)
				continue
			}
			if n > 0 {
				fmt.Printf("🔄 refreshed %d expired cache row(s)\n", n)
			}
		case <-ctx.Done():
			return
		}
	}
}

func statusEmoji(category string) string {
	switch category {
	case verdict.CategoryValid, verdict.CategoryWhitelisted, verdict.CategoryForwarded:
		return "✅"
	case verdict.CategoryInvalid, verdict.CategoryUserNotFound, verdict.CategorySyntaxError:
		return "❌"
	case verdict.CategoryGreylisted:
		return "⏳"
	case verdict.CategoryCatchAll:
		return "📬"
	case verdict.CategoryBlacklisted, verdict.CategoryDisposable:
		return "🚫"
	default:
		return "❓"
	}
}
