package infra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"crm-sync-gateway/crmsync/domain"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"k8s.io/utils/clock"
)

// promoteScript move jobs vencidos do schedule para as filas em uma única operação.
// Cada membro do schedule é "<fila>|<payload>".
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, m in ipairs(due) do
  local sep = string.find(m, '|', 1, true)
  redis.call('ZREM', KEYS[1], m)
  redis.call('LPUSH', ARGV[3] .. string.sub(m, 1, sep - 1), string.sub(m, sep + 1))
end
return #due
`)

// RedisQueue implementa domain.JobQueue sobre listas do Redis.
//
// Layout (prefix padrão "{crmsync}", hash tag para manter tudo no mesmo slot):
//   - <prefix>:queue:<nome>        lista FIFO (LPUSH / LMOVE RIGHT)
//   - <prefix>:processing:<worker> entregas em andamento deste worker
//   - <prefix>:schedule            zset de adiamentos e retries (score = unix ms)
//   - <prefix>:dead                zset de jobs enterrados, limitado a deadCap
type RedisQueue struct {
	rdb      redis.UniversalClient
	prefix   string
	workerID string
	deadCap  int64
	batch    int
	clock    clock.PassiveClock
}

type RedisQueueOption func(*RedisQueue)

func WithQueuePrefix(prefix string) RedisQueueOption {
	return func(q *RedisQueue) { q.prefix = strings.TrimRight(prefix, ":") }
}

// WithWorkerID fixa o nome da lista de processamento. Use um id estável por
// processo para que Recover encontre as entregas órfãs após um restart.
func WithWorkerID(id string) RedisQueueOption {
	return func(q *RedisQueue) { q.workerID = id }
}

func WithRedisDeadCap(n int) RedisQueueOption {
	return func(q *RedisQueue) { q.deadCap = int64(n) }
}

func WithPromoteBatch(n int) RedisQueueOption {
	return func(q *RedisQueue) { q.batch = n }
}

func WithRedisQueueClock(c clock.PassiveClock) RedisQueueOption {
	return func(q *RedisQueue) { q.clock = c }
}

func NewRedisQueue(rdb redis.UniversalClient, opts ...RedisQueueOption) *RedisQueue {
	q := &RedisQueue{
		rdb:      rdb,
		prefix:   "{crmsync}",
		workerID: uuid.NewString(),
		deadCap:  DefaultDeadCap,
		batch:    100,
		clock:    clock.RealClock{},
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

func (q *RedisQueue) WorkerID() string { return q.workerID }

func (q *RedisQueue) Enqueue(ctx context.Context, queue string, job domain.Job) error {
	if queue == "" {
		queue = queueOf(job)
	}
	job.Queue = queue
	raw, err := json.Marshal(job)
	if err != nil {
		return err
	}
	return q.rdb.LPush(ctx, q.queueKey(queue), raw).Err()
}

func (q *RedisQueue) EnqueueIn(ctx context.Context, delay time.Duration, job domain.Job) error {
	job.Queue = queueOf(job)
	member, err := scheduleMember(job)
	if err != nil {
		return err
	}
	at := q.clock.Now().Add(delay)
	return q.rdb.ZAdd(ctx, q.key("schedule"), redis.Z{Score: float64(at.UnixMilli()), Member: member}).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context, queues []string) (*domain.Delivery, error) {
	for _, name := range queues {
		raw, err := q.rdb.LMove(ctx, q.queueKey(name), q.processingKey(), "RIGHT", "LEFT").Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var job domain.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			// payload corrompido não volta para a fila
			_ = q.rdb.LRem(ctx, q.processingKey(), 1, raw).Err()
			return nil, domain.Permanent(fmt.Errorf("decode job from %s: %w", name, err))
		}
		return &domain.Delivery{Job: job, Queue: name, Raw: raw}, nil
	}
	return nil, domain.ErrQueueEmpty
}

func (q *RedisQueue) Ack(ctx context.Context, d *domain.Delivery) error {
	return q.rdb.LRem(ctx, q.processingKey(), 1, d.Raw).Err()
}

func (q *RedisQueue) Retry(ctx context.Context, d *domain.Delivery, at time.Time) error {
	member, err := scheduleMember(d.Job)
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, d.Raw)
		pipe.ZAdd(ctx, q.key("schedule"), redis.Z{Score: float64(at.UnixMilli()), Member: member})
		return nil
	})
	return err
}

func (q *RedisQueue) Bury(ctx context.Context, d *domain.Delivery) error {
	raw, err := json.Marshal(d.Job)
	if err != nil {
		return err
	}
	dead := q.key("dead")
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processingKey(), 1, d.Raw)
		pipe.ZAdd(ctx, dead, redis.Z{Score: float64(q.clock.Now().UnixMilli()), Member: raw})
		if q.deadCap > 0 {
			// mantém só os deadCap mais recentes
			pipe.ZRemRangeByRank(ctx, dead, 0, -(q.deadCap + 1))
		}
		return nil
	})
	return err
}

func (q *RedisQueue) PromoteDue(ctx context.Context) (int, error) {
	now := strconv.FormatInt(q.clock.Now().UnixMilli(), 10)
	n, err := promoteScript.Run(ctx, q.rdb, []string{q.key("schedule")}, now, q.batch, q.key("queue")+":").Int()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Recover devolve às filas de origem as entregas que ficaram na lista de
// processamento de workerID (processo que morreu antes do ack).
func (q *RedisQueue) Recover(ctx context.Context, workerID string) (int, error) {
	processing := q.key("processing", workerID)
	raws, err := q.rdb.LRange(ctx, processing, 0, -1).Result()
	if err != nil {
		return 0, err
	}

	n := 0
	for _, raw := range raws {
		var job domain.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			_ = q.rdb.LRem(ctx, processing, 1, raw).Err()
			continue
		}
		_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LRem(ctx, processing, 1, raw)
			pipe.RPush(ctx, q.queueKey(queueOf(job)), raw)
			return nil
		})
		if err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (q *RedisQueue) Len(ctx context.Context, queue string) (int64, error) {
	return q.rdb.LLen(ctx, q.queueKey(queue)).Result()
}

func (q *RedisQueue) ScheduledCount(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key("schedule")).Result()
}

func (q *RedisQueue) DeadCount(ctx context.Context) (int64, error) {
	return q.rdb.ZCard(ctx, q.key("dead")).Result()
}

// Dead devolve até limit jobs enterrados, do mais recente ao mais antigo.
func (q *RedisQueue) Dead(ctx context.Context, limit int64) ([]domain.Job, error) {
	raws, err := q.rdb.ZRevRange(ctx, q.key("dead"), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	jobs := make([]domain.Job, 0, len(raws))
	for _, raw := range raws {
		var job domain.Job
		if err := json.Unmarshal([]byte(raw), &job); err != nil {
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (q *RedisQueue) key(parts ...string) string {
	return q.prefix + ":" + strings.Join(parts, ":")
}

func (q *RedisQueue) queueKey(name string) string { return q.key("queue", name) }
func (q *RedisQueue) processingKey() string       { return q.key("processing", q.workerID) }

func scheduleMember(job domain.Job) (string, error) {
	job.Queue = queueOf(job)
	raw, err := json.Marshal(job)
	if err != nil {
		return "", err
	}
	return job.Queue + "|" + string(raw), nil
}
