package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/urfave/cli/v2"
	"gorm.io/gorm"

	"github.com/customeros/mercure/config"
	"github.com/customeros/mercure/internal/database"
	"github.com/customeros/mercure/internal/repository"
	"github.com/customeros/mercure/server"
	"github.com/customeros/mercure/services/cloner"
	"github.com/customeros/mercure/services/interceptor"
)

func main() {
	app := &cli.App{
		Name:  "mercure",
		Usage: "phishing simulation campaigns",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "Run database migrations",
				Action: migrate,
			},
			{
				Name:   "server",
				Usage:  "Start the application server",
				Action: serve,
			},
			{
				Name:   "send-due",
				Usage:  "Send every campaign whose send time has passed",
				Action: sendDue,
			},
			{
				Name:      "clone",
				Usage:     "Clone a page and print it with its forms intercepted",
				ArgsUsage: "<url>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "write the page to `FILE`"},
				},
				Action: clonePage,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatalf("Config initialization failed: %v", err)
	}
	if cfg == nil {
		log.Fatalf("config is empty")
	}
	return cfg
}

func openDatabase(cfg *config.Config) *gorm.DB {
	db, err := database.InitMercureDatabase(cfg.DatabaseConfig)
	if err != nil {
		log.Fatalf("Mercure database initialization failed: %v", err)
	}
	return db
}

func migrate(_ *cli.Context) error {
	cfg := loadConfig()
	if err := repository.MigrateDB(cfg.DatabaseConfig, openDatabase(cfg)); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	log.Println("Database migration completed successfully")
	return nil
}

func serve(_ *cli.Context) error {
	cfg := loadConfig()
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.Println("Mercure starting up...")

	srv, err := server.NewServer(cfg, openDatabase(cfg))
	if err != nil {
		return fmt.Errorf("server setup failed: %w", err)
	}
	if err = srv.Run(); err != nil {
		return fmt.Errorf("server startup failed: %w", err)
	}
	log.Println("Shutdown complete")
	return nil
}

func sendDue(c *cli.Context) error {
	cfg := loadConfig()
	appLogger := server.NewLogger(cfg)

	svcs, _, closer, err := server.NewServices(cfg, appLogger, openDatabase(cfg))
	if err != nil {
		return err
	}
	defer closer.Close()
	defer svcs.Close()

	count, err := svcs.DeliveryService.SendDueCampaigns(c.Context)
	if err != nil {
		return err
	}
	appLogger.Infof("Sent %d due campaigns", count)
	return nil
}

// clonePage needs no database, the result is meant to be reviewed before
// it is stored as a landing page.
func clonePage(c *cli.Context) error {
	rawURL := c.Args().First()
	if rawURL == "" {
		return cli.Exit("missing <url>", 1)
	}
	cfg := loadConfig()

	page, err := cloner.NewService(cfg.CloneConfig).Clone(context.Background(), rawURL)
	if err != nil {
		return err
	}
	page, err = interceptor.NewInterceptor(cfg.AppConfig).Intercept(page, rawURL)
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		return os.WriteFile(out, []byte(page), 0o644)
	}
	_, err = fmt.Fprintln(c.App.Writer, page)
	return err
}
