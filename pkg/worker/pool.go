package worker

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/glottahq/glotta/pkg/log"
	"github.com/glottahq/glotta/pkg/metrics"
	"github.com/glottahq/glotta/pkg/provider"
	"github.com/glottahq/glotta/pkg/store"
	"github.com/glottahq/glotta/pkg/tasks"
	"github.com/glottahq/glotta/pkg/types"
)

// Cluster coordination keys. Set TTLs are refreshed by heartbeats, so they
// only lapse when every instance is gone.
const (
	instancesKey    = "cluster:active_instances"
	workersKey      = "cluster:active_workers"
	decisionKey     = "cluster:scaling_decision"
	lockKey         = "cluster:scaling_lock"
	lowQueueKey     = "cluster:consecutive_low_queue"
	heartbeatPrefix = "instance:heartbeat:"

	heartbeatInterval = 30 * time.Second
	heartbeatTTL      = 120 * time.Second
	workerSetTTL      = 300 * time.Second
	decisionTTL       = 60 * time.Second
	lockTTL           = 30 * time.Second
	sweepInterval     = 60 * time.Second
	staleAfter        = 180 * time.Second

	// lowQueueStreak is how many consecutive low-pressure checks must pass
	// before the cluster sheds workers.
	lowQueueThreshold = 10
	lowQueueStreak    = 3
	maxShrink         = 10
)

func heartbeatKey(instanceID string) string { return heartbeatPrefix + instanceID }

// CapacitySource reports how many credentials can currently absorb new
// request load; it bounds cluster-wide scale-up.
type CapacitySource interface {
	CapacityCount(ctx context.Context) int
}

// Config sizes the local pool and its share of the cluster.
type Config struct {
	InstanceID            string
	MinWorkers            int
	MaxWorkers            int // cluster-wide cap
	MaxWorkersPerInstance int
	ScaleCheckInterval    time.Duration

	// WorkersPerCredential converts usable credentials into worker
	// capacity; derived from the default per-key RPM.
	WorkersPerCredential int
}

// Pool runs this instance's workers and coordinates cluster-wide scaling
// through the store: every instance heartbeats, one wins the scaling lock
// per check and publishes a target, and everyone applies its own share.
type Pool struct {
	cfg        Config
	store      *store.Client
	tasks      *tasks.Manager
	translator provider.Translator
	keys       CapacitySource

	instanceID string

	mu      sync.Mutex
	workers map[string]*Worker

	reapWG   sync.WaitGroup // every spawned worker, including removed ones
	loopWG   sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
	log      zerolog.Logger
}

// NewPool builds a Pool. A missing instance id is generated; a missing
// per-credential worker factor defaults to 6.
func NewPool(st *store.Client, manager *tasks.Manager, translator provider.Translator, keys CapacitySource, cfg Config) *Pool {
	if cfg.InstanceID == "" {
		cfg.InstanceID = "glotta-" + uuid.NewString()[:8]
	}
	if cfg.WorkersPerCredential <= 0 {
		cfg.WorkersPerCredential = 6
	}
	if cfg.MaxWorkersPerInstance <= 0 {
		cfg.MaxWorkersPerInstance = cfg.MaxWorkers
	}
	return &Pool{
		cfg:        cfg,
		store:      st,
		tasks:      manager,
		translator: translator,
		keys:       keys,
		instanceID: cfg.InstanceID,
		workers:    make(map[string]*Worker),
		stopCh:     make(chan struct{}),
		log:        log.WithComponent("pool").With().Str("instance_id", cfg.InstanceID).Logger(),
	}
}

// InstanceID returns this instance's cluster identity.
func (p *Pool) InstanceID() string {
	return p.instanceID
}

// Start spawns the minimum workers, registers the instance, and launches
// the heartbeat, scaling, and stale-instance sweep loops.
func (p *Pool) Start(ctx context.Context) {
	p.resize(ctx, p.cfg.MinWorkers)
	p.heartbeat(ctx)

	p.loopWG.Add(3)
	go p.heartbeatLoop()
	go p.scalingLoop()
	go p.sweepLoop()

	p.log.Info().Int("workers", p.cfg.MinWorkers).Msg("worker pool started")
}

// Stop shuts the pool down: loops first, then workers. Busy workers finish
// their current task before Stop returns, and the instance deregisters from
// the cluster. Safe to call more than once.
func (p *Pool) Stop() {
	p.stopOnce.Do(p.shutdown)
}

func (p *Pool) shutdown() {
	close(p.stopCh)
	p.loopWG.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	p.mu.Lock()
	for id, w := range p.workers {
		w.Stop()
		delete(p.workers, id)
		if err := p.store.SRem(ctx, workersKey, p.member(id)); err != nil {
			p.log.Warn().Err(err).Str("worker_id", id).Msg("cannot deregister worker")
		}
	}
	p.mu.Unlock()
	p.reapWG.Wait()

	if err := p.store.SRem(ctx, instancesKey, p.instanceID); err != nil {
		p.log.Warn().Err(err).Msg("cannot deregister instance")
	}
	if err := p.store.Del(ctx, heartbeatKey(p.instanceID)); err != nil {
		p.log.Warn().Err(err).Msg("cannot drop heartbeat")
	}
	p.log.Info().Msg("worker pool stopped")
}

// Stats reports the local pool: worker counts and lifetime task counters
// summed over the current workers. SuccessRate is a percentage.
func (p *Pool) Stats() types.PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := types.PoolStats{TotalWorkers: len(p.workers)}
	for _, w := range p.workers {
		if w.Busy() {
			stats.ActiveWorkers++
		}
		stats.TasksProcessed += w.processed.Load()
		stats.TasksSuccessful += w.successful.Load()
		stats.TasksFailed += w.failed.Load()
	}
	stats.IdleWorkers = stats.TotalWorkers - stats.ActiveWorkers
	if stats.TasksProcessed > 0 {
		stats.SuccessRate = float64(stats.TasksSuccessful) / float64(stats.TasksProcessed) * 100
	}

	metrics.WorkersTotal.WithLabelValues("active").Set(float64(stats.ActiveWorkers))
	metrics.WorkersTotal.WithLabelValues("idle").Set(float64(stats.IdleWorkers))
	return stats
}

// Cluster reports every live instance from its heartbeat hash plus the
// cluster-wide worker cardinality.
func (p *Pool) Cluster(ctx context.Context) (types.ClusterStats, error) {
	ids, err := p.store.SMembers(ctx, instancesKey)
	if err != nil {
		return types.ClusterStats{}, err
	}
	sort.Strings(ids)

	stats := types.ClusterStats{TotalInstances: len(ids)}
	for _, id := range ids {
		fields, err := p.store.HGetAll(ctx, heartbeatKey(id))
		if err != nil || len(fields) == 0 {
			continue
		}
		ts, _ := heartbeatTime(fields)
		stats.Instances = append(stats.Instances, types.InstanceStatus{
			InstanceID:     id,
			WorkerCount:    atoiOr(fields["worker_count"], 0),
			ActiveWorkers:  atoiOr(fields["active_workers"], 0),
			ProcessedTasks: int64(atoiOr(fields["processed_tasks"], 0)),
			LastHeartbeat:  ts,
		})
	}

	if n, err := p.store.SCard(ctx, workersKey); err == nil {
		stats.TotalWorkers = int(n)
	}
	metrics.ClusterInstances.Set(float64(stats.TotalInstances))
	return stats, nil
}

// Decision returns the last published scaling decision, or nil when none is
// current (the hash expires between scaling cycles when no leader runs).
func (p *Pool) Decision(ctx context.Context) (*types.ScalingDecision, error) {
	fields, err := p.store.HGetAll(ctx, decisionKey)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, nil
	}
	d := &types.ScalingDecision{
		TargetClusterWorkers: atoiOr(fields["target_cluster_workers"], 0),
		QueuePressure:        atoiOr(fields["queue_pressure"], 0),
		Leader:               fields["leader"],
	}
	if unix, err := strconv.ParseInt(fields["timestamp"], 10, 64); err == nil {
		d.Timestamp = time.Unix(unix, 0).UTC()
	}
	return d, nil
}

func (p *Pool) heartbeatLoop() {
	defer p.loopWG.Done()
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.heartbeat(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// heartbeat advertises this instance: membership in the instance set plus a
// snapshot hash other instances and /stats read.
func (p *Pool) heartbeat(ctx context.Context) {
	if err := p.store.SAdd(ctx, instancesKey, p.instanceID); err != nil {
		p.log.Warn().Err(err).Msg("cannot register instance")
		return
	}
	if err := p.store.Expire(ctx, instancesKey, heartbeatTTL); err != nil {
		p.log.Warn().Err(err).Msg("cannot refresh instance set ttl")
	}
	if err := p.store.Expire(ctx, workersKey, workerSetTTL); err != nil {
		p.log.Warn().Err(err).Msg("cannot refresh worker set ttl")
	}

	stats := p.Stats()
	key := heartbeatKey(p.instanceID)
	fields := map[string]string{
		"timestamp":       strconv.FormatInt(time.Now().Unix(), 10),
		"worker_count":    strconv.Itoa(stats.TotalWorkers),
		"active_workers":  strconv.Itoa(stats.ActiveWorkers),
		"processed_tasks": strconv.FormatInt(stats.TasksProcessed, 10),
	}
	if err := p.store.HSet(ctx, key, fields); err != nil {
		p.log.Warn().Err(err).Msg("cannot write heartbeat")
		return
	}
	if err := p.store.Expire(ctx, key, heartbeatTTL); err != nil {
		p.log.Warn().Err(err).Msg("cannot bound heartbeat ttl")
	}
}

func (p *Pool) scalingLoop() {
	defer p.loopWG.Done()
	ticker := time.NewTicker(p.cfg.ScaleCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.scale(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// scale contends for the scaling lock: the winner computes and publishes the
// cluster target, everyone else follows the published decision. Errors are
// logged and the next tick retries.
func (p *Pool) scale(ctx context.Context) {
	ok, err := p.store.SetNX(ctx, lockKey, p.instanceID, lockTTL)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot contend for scaling lock")
		return
	}
	if ok {
		p.lead(ctx)
		return
	}
	p.follow(ctx)
}

func (p *Pool) lead(ctx context.Context) {
	stats, err := p.tasks.QueueStats(ctx)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot read queue stats for scaling")
		return
	}
	pressure := stats.Pressure()

	capacity := p.keys.CapacityCount(ctx) * p.cfg.WorkersPerCredential
	if capacity > p.cfg.MaxWorkers {
		capacity = p.cfg.MaxWorkers
	}

	current := p.clusterWorkerCount(ctx)
	target := p.targetWorkers(ctx, pressure, current)
	if target > capacity {
		target = capacity
	}
	if target < 0 {
		target = 0
	}

	direction := "hold"
	switch {
	case target > current:
		direction = "up"
	case target < current:
		direction = "down"
	}
	metrics.ScalingDecisionsTotal.WithLabelValues(direction).Inc()

	decision := map[string]string{
		"target_cluster_workers": strconv.Itoa(target),
		"queue_pressure":         strconv.Itoa(pressure),
		"leader":                 p.instanceID,
		"timestamp":              strconv.FormatInt(time.Now().Unix(), 10),
	}
	if err := p.store.HSet(ctx, decisionKey, decision); err != nil {
		p.log.Warn().Err(err).Msg("cannot publish scaling decision")
	} else if err := p.store.Expire(ctx, decisionKey, decisionTTL); err != nil {
		p.log.Warn().Err(err).Msg("cannot bound scaling decision ttl")
	}

	if direction != "hold" {
		p.log.Info().
			Int("pressure", pressure).
			Int("current", current).
			Int("target", target).
			Int("capacity", capacity).
			Msg("scaling cluster")
	}

	p.applyShare(ctx, target)
}

func (p *Pool) follow(ctx context.Context) {
	fields, err := p.store.HGetAll(ctx, decisionKey)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot read scaling decision")
		return
	}
	if len(fields) == 0 {
		return
	}
	target, err := strconv.Atoi(fields["target_cluster_workers"])
	if err != nil {
		p.log.Warn().Str("value", fields["target_cluster_workers"]).Msg("malformed scaling decision")
		return
	}
	p.applyShare(ctx, target)
}

// targetWorkers applies the pressure table. Scale-down needs the low-queue
// streak counter to reach lowQueueStreak; any non-low check resets it.
func (p *Pool) targetWorkers(ctx context.Context, pressure, current int) int {
	if pressure < lowQueueThreshold {
		streak, err := p.store.Incr(ctx, lowQueueKey, 0)
		if err != nil {
			p.log.Warn().Err(err).Msg("cannot track low-queue streak")
			return current
		}
		if streak < lowQueueStreak {
			return current
		}
		shrink := current / 4
		if shrink > maxShrink {
			shrink = maxShrink
		}
		return current - shrink
	}

	if err := p.store.Del(ctx, lowQueueKey); err != nil {
		p.log.Warn().Err(err).Msg("cannot reset low-queue streak")
	}
	switch {
	case pressure > 500:
		return current + 50
	case pressure > 200:
		return current + 25
	case pressure > 100:
		return current + 15
	case pressure > 50:
		return current + 5
	}
	return current
}

// applyShare splits the cluster target evenly across instances in sorted id
// order (the first target mod n instances absorb the remainder) and resizes
// the local pool to its slice, clamped to the per-instance bounds.
func (p *Pool) applyShare(ctx context.Context, target int) {
	ids, err := p.store.SMembers(ctx, instancesKey)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot list instances for share split")
		return
	}
	present := false
	for _, id := range ids {
		if id == p.instanceID {
			present = true
			break
		}
	}
	if !present {
		ids = append(ids, p.instanceID)
	}
	sort.Strings(ids)

	share := target / len(ids)
	extra := target % len(ids)
	for i, id := range ids {
		if id == p.instanceID {
			if i < extra {
				share++
			}
			break
		}
	}

	if share < p.cfg.MinWorkers {
		share = p.cfg.MinWorkers
	}
	if share > p.cfg.MaxWorkersPerInstance {
		share = p.cfg.MaxWorkersPerInstance
	}
	p.resize(ctx, share)
}

func (p *Pool) clusterWorkerCount(ctx context.Context) int {
	n, err := p.store.SCard(ctx, workersKey)
	if err != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return len(p.workers)
	}
	return int(n)
}

// resize grows or shrinks the local pool to target workers.
func (p *Pool) resize(ctx context.Context, target int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := len(p.workers)
	switch {
	case target > current:
		for i := current; i < target; i++ {
			p.addWorkerLocked(ctx)
		}
	case target < current:
		p.removeWorkersLocked(ctx, current-target)
	}
}

func (p *Pool) addWorkerLocked(ctx context.Context) {
	id := "worker-" + uuid.NewString()[:8]
	w := newWorker(id, p.tasks, p.translator)
	p.workers[id] = w

	w.Start()
	p.reapWG.Add(1)
	go func() {
		w.Wait()
		p.reapWG.Done()
	}()

	if err := p.store.SAdd(ctx, workersKey, p.member(id)); err != nil {
		p.log.Warn().Err(err).Str("worker_id", id).Msg("cannot register worker")
	} else if err := p.store.Expire(ctx, workersKey, workerSetTTL); err != nil {
		p.log.Warn().Err(err).Msg("cannot refresh worker set ttl")
	}
	p.log.Debug().Str("worker_id", id).Msg("worker added")
}

// removeWorkersLocked sheds count workers, idle ones first. Busy victims
// finish their current task before exiting.
func (p *Pool) removeWorkersLocked(ctx context.Context, count int) {
	victims := make([]*Worker, 0, count)
	for _, w := range p.workers {
		if len(victims) >= count {
			break
		}
		if !w.Busy() {
			victims = append(victims, w)
		}
	}
	if len(victims) < count {
		for _, w := range p.workers {
			if len(victims) >= count {
				break
			}
			if w.Busy() {
				victims = append(victims, w)
			}
		}
	}

	for _, w := range victims {
		w.Stop()
		delete(p.workers, w.id)
		if err := p.store.SRem(ctx, workersKey, p.member(w.id)); err != nil {
			p.log.Warn().Err(err).Str("worker_id", w.id).Msg("cannot deregister worker")
		}
		p.log.Debug().Str("worker_id", w.id).Msg("worker removed")
	}
}

func (p *Pool) sweepLoop() {
	defer p.loopWG.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweepStale(context.Background())
		case <-p.stopCh:
			return
		}
	}
}

// sweepStale drops instances whose heartbeat is missing or too old, along
// with their worker registrations, so dead instances stop counting toward
// the cluster share.
func (p *Pool) sweepStale(ctx context.Context) {
	ids, err := p.store.SMembers(ctx, instancesKey)
	if err != nil {
		p.log.Warn().Err(err).Msg("cannot list instances for sweep")
		return
	}

	var members []string
	for _, id := range ids {
		if id == p.instanceID {
			continue
		}
		fields, err := p.store.HGetAll(ctx, heartbeatKey(id))
		if err != nil {
			continue
		}
		if ts, ok := heartbeatTime(fields); ok && time.Since(ts) <= staleAfter {
			continue
		}

		if err := p.store.SRem(ctx, instancesKey, id); err != nil {
			p.log.Warn().Err(err).Str("instance_id", id).Msg("cannot drop stale instance")
			continue
		}
		if err := p.store.Del(ctx, heartbeatKey(id)); err != nil {
			p.log.Warn().Err(err).Str("instance_id", id).Msg("cannot drop stale heartbeat")
		}
		if members == nil {
			if members, err = p.store.SMembers(ctx, workersKey); err != nil {
				p.log.Warn().Err(err).Msg("cannot list cluster workers for sweep")
				members = []string{}
			}
		}
		for _, m := range members {
			if strings.HasPrefix(m, id+":") {
				if err := p.store.SRem(ctx, workersKey, m); err != nil {
					p.log.Warn().Err(err).Str("member", m).Msg("cannot drop stale worker")
				}
			}
		}
		p.log.Info().Str("instance_id", id).Msg("swept stale instance")
	}
}

func (p *Pool) member(workerID string) string {
	return p.instanceID + ":" + workerID
}

func heartbeatTime(fields map[string]string) (time.Time, bool) {
	raw, ok := fields["timestamp"]
	if !ok {
		return time.Time{}, false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(unix, 0).UTC(), true
}

func atoiOr(s string, fallback int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fallback
	}
	return n
}
