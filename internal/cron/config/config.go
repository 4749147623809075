package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// Launch campaigns whose send time has passed, every minute
	CronScheduleSendDueCampaigns string `env:"CRON_SCHEDULE_SEND_DUE_CAMPAIGNS" envDefault:"0 * * * * *"`
}
