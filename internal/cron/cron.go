package cron

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/caarlos0/env/v6"
	cronv3 "github.com/robfig/cron/v3"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/tools/leaderelection"
	"k8s.io/client-go/tools/leaderelection/resourcelock"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/interfaces"
	cron_config "github.com/customeros/mercure/internal/cron/config"
	"github.com/customeros/mercure/internal/logger"
	"github.com/customeros/mercure/internal/tracing"
)

const (
	// GroupDelivery serialises jobs that send mail
	GroupDelivery = "delivery"

	JobHeartbeat        = "heartbeat"
	JobSendDueCampaigns = "send_due_campaigns"

	LeaseName     = "mercure-cron-leader"
	LeaseDuration = 15 * time.Second
	RenewDeadline = 10 * time.Second
	RetryPeriod   = 2 * time.Second
)

var groupLocks = map[string]*sync.Mutex{
	GroupDelivery: new(sync.Mutex),
}

type job struct {
	name     string
	schedule string
	group    string
	run      func(ctx context.Context) error
}

// CronManager runs the periodic jobs on a single replica. In a cluster the
// replica holding the lease runs them; elsewhere they run locally.
type CronManager struct {
	cfg      *config.Config
	log      logger.Logger
	k8s      kubernetes.Interface
	delivery interfaces.DeliveryService

	mu       sync.Mutex
	cron     *cronv3.Cron
	jobIDs   map[string]cronv3.EntryID
	cancel   context.CancelFunc
	stopCh   chan struct{}
	stopOnce sync.Once
}

func NewCronManager(cfg *config.Config, log logger.Logger, k8s kubernetes.Interface, delivery interfaces.DeliveryService) *CronManager {
	return &CronManager{
		cfg:      cfg,
		log:      log,
		k8s:      k8s,
		delivery: delivery,
		jobIDs:   make(map[string]cronv3.EntryID),
		stopCh:   make(chan struct{}),
	}
}

// Start runs the jobs under leader election. Without a kubernetes client,
// or with LOCAL_DEV=true, the jobs start right away.
func (cm *CronManager) Start(podName, namespace string) error {
	if cm.k8s == nil || os.Getenv("LOCAL_DEV") == "true" {
		cm.log.Info("Starting cron manager in local mode")
		return cm.StartCron()
	}

	elector, err := leaderelection.NewLeaderElector(leaderelection.LeaderElectionConfig{
		Lock: &resourcelock.LeaseLock{
			LeaseMeta:  metav1.ObjectMeta{Name: LeaseName, Namespace: namespace},
			Client:     cm.k8s.CoordinationV1(),
			LockConfig: resourcelock.ResourceLockConfig{Identity: podName},
		},
		ReleaseOnCancel: true,
		LeaseDuration:   LeaseDuration,
		RenewDeadline:   RenewDeadline,
		RetryPeriod:     RetryPeriod,
		Callbacks: leaderelection.LeaderCallbacks{
			OnStartedLeading: func(context.Context) {
				if err := cm.StartCron(); err != nil {
					cm.log.Errorf("Could not start crons after winning the lease: %v", err)
				}
			},
			OnStoppedLeading: func() {
				cm.log.Info("Leader lost - stopping crons")
				cm.stopCron()
			},
			OnNewLeader: func(identity string) {
				cm.log.Infof("New leader elected: %s", identity)
			},
		},
	})
	if err != nil {
		cm.log.Warnf("Leader election unavailable, falling back to local mode: %v", err)
		return cm.StartCron()
	}

	ctx, cancel := context.WithCancel(context.Background())
	cm.mu.Lock()
	cm.cancel = cancel
	cm.mu.Unlock()
	go func() {
		// Run returns on lost leadership, campaign again until Stop
		for ctx.Err() == nil {
			elector.Run(ctx)
		}
	}()
	return nil
}

// Stop releases the lease and waits for running jobs.
func (cm *CronManager) Stop() {
	cm.mu.Lock()
	cancel := cm.cancel
	cm.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	cm.stopCron()
	cm.stopOnce.Do(func() { close(cm.stopCh) })
}

func (cm *CronManager) stopCron() {
	cm.mu.Lock()
	c := cm.cron
	cm.cron = nil
	cm.mu.Unlock()
	if c == nil {
		return
	}
	cm.log.Info("Stopping cron manager")
	<-c.Stop().Done()
}

// StartCron is a no-op while the scheduler is already running, which
// happens when the lease is won again.
func (cm *CronManager) StartCron() error {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cron != nil {
		return nil
	}

	cronLogger := cronv3.PrintfLogger(cm.log)
	c := cronv3.New(
		cronv3.WithSeconds(),
		cronv3.WithLogger(cronLogger),
		cronv3.WithChain(
			cronv3.SkipIfStillRunning(cronLogger),
			cronv3.Recover(cronLogger),
		),
	)
	if err := cm.registerJobs(c); err != nil {
		return err
	}
	cm.log.Info("Starting cron manager")
	c.Start()
	cm.cron = c
	return nil
}

func (cm *CronManager) cronConfig() *cron_config.Config {
	if cm.cfg != nil && cm.cfg.CronConfig != nil {
		return cm.cfg.CronConfig
	}
	var cronConfig cron_config.Config
	if err := env.Parse(&cronConfig); err != nil {
		cm.log.Warnf("Failed to parse cron config from environment, using defaults: %v", err)
	}
	return &cronConfig
}

func (cm *CronManager) jobs() []job {
	cronConfig := cm.cronConfig()
	jobs := []job{{
		name:     JobHeartbeat,
		schedule: cronConfig.CronScheduleHeartbeat,
		run:      cm.heartbeat,
	}}
	if cm.delivery != nil {
		jobs = append(jobs, job{
			name:     JobSendDueCampaigns,
			schedule: cronConfig.CronScheduleSendDueCampaigns,
			group:    GroupDelivery,
			run:      cm.sendDueCampaigns,
		})
	}
	return jobs
}

// registerJobs skips jobs with an empty schedule.
func (cm *CronManager) registerJobs(c *cronv3.Cron) error {
	for _, j := range cm.jobs() {
		if j.schedule == "" {
			continue
		}
		id, err := c.AddFunc(j.schedule, cm.wrap(j))
		if err != nil {
			return err
		}
		cm.jobIDs[j.name] = id
		cm.log.Infof("Registered %s job with schedule: %s", j.name, j.schedule)
	}
	return nil
}

func (cm *CronManager) wrap(j job) func() {
	return func() {
		defer tracing.RecoverAndLogToJaeger(cm.log)
		if lock, ok := groupLocks[j.group]; ok {
			lock.Lock()
			defer lock.Unlock()
		}

		span, ctx := tracing.StartTracerSpan(context.Background(), "CronManager."+j.name)
		defer span.Finish()
		tracing.TagComponent(span, tracing.ComponentCronJob)

		if err := j.run(ctx); err != nil {
			tracing.TraceErr(span, err)
			cm.log.Errorf("Cron job %s failed: %v", j.name, err)
		}
	}
}

func (cm *CronManager) heartbeat(context.Context) error {
	podName := os.Getenv("POD_NAME")
	if podName == "" {
		podName = "local"
	}
	cm.log.Infof("Cron heartbeat from pod: %s", podName)
	return nil
}

func (cm *CronManager) sendDueCampaigns(ctx context.Context) error {
	count, err := cm.delivery.SendDueCampaigns(ctx)
	if err != nil {
		return err
	}
	if count > 0 {
		cm.log.Infof("Sent %d due campaigns", count)
	}
	return nil
}
