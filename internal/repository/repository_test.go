package repository

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/customeros/mercure/internal/enum"
	mercure_errors "github.com/customeros/mercure/internal/errors"
	"github.com/customeros/mercure/internal/models"
)

type statement struct {
	sql  string
	vars []interface{}
}

// dryRunDB renders statements for postgres without a server and records
// every INSERT and UPDATE it builds.
func dryRunDB(t *testing.T) (*gorm.DB, *[]statement) {
	t.Helper()
	db, err := gorm.Open(postgres.New(postgres.Config{DSN: "host=localhost user=mercure dbname=mercure sslmode=disable"}), &gorm.Config{
		DryRun:               true,
		DisableAutomaticPing: true,
	})
	require.NoError(t, err)

	var recorded []statement
	record := func(tx *gorm.DB) {
		recorded = append(recorded, statement{sql: tx.Statement.SQL.String(), vars: tx.Statement.Vars})
	}
	require.NoError(t, db.Callback().Create().After("gorm:create").Register("test:record_create", record))
	require.NoError(t, db.Callback().Update().After("gorm:update").Register("test:record_update", record))
	return db, &recorded
}

// insertedValue returns the value bound to column in an INSERT statement.
func insertedValue(t *testing.T, s statement, column string) interface{} {
	t.Helper()
	open, end := strings.Index(s.sql, "("), strings.Index(s.sql, ")")
	require.True(t, open >= 0 && end > open, s.sql)
	for i, c := range strings.Split(s.sql[open+1:end], ",") {
		if strings.Trim(c, `" `) == column {
			require.Less(t, i, len(s.vars))
			return s.vars[i]
		}
	}
	require.Failf(t, "column not inserted", "%s in %s", column, s.sql)
	return nil
}

func TestTrackerRepository_CreateIfAbsent(t *testing.T) {
	db, recorded := dryRunDB(t)
	repo := NewTrackerRepository(db)

	tracker := &models.Tracker{CampaignID: "c1", TargetEmail: "a@b.com", TargetID: "t1", Key: enum.TrackerEmailOpen, Value: enum.TrackerValueNotOpened}
	_, err := repo.CreateIfAbsent(context.Background(), tracker)
	require.NoError(t, err)

	require.Len(t, *recorded, 1)
	s := (*recorded)[0]
	assert.True(t, strings.HasPrefix(s.sql, `INSERT INTO "trackers"`), s.sql)
	assert.Contains(t, s.sql, "ON CONFLICT DO NOTHING")
	assert.Equal(t, "a@b.com", insertedValue(t, s, "target_email"))
	assert.NotEmpty(t, tracker.ID)
}

func TestTrackerRepository_IncrementVisits(t *testing.T) {
	db, recorded := dryRunDB(t)
	repo := NewTrackerRepository(db)

	// nothing is executed, so no row reports as updated
	_, err := repo.IncrementVisits(context.Background(), "trk", enum.TrackerValueOpened)
	assert.ErrorIs(t, err, mercure_errors.ErrTrackerNotFound)

	require.Len(t, *recorded, 1)
	s := (*recorded)[0]
	assert.True(t, strings.HasPrefix(s.sql, `UPDATE "trackers" SET`), s.sql)
	assert.Contains(t, s.sql, `"count"=count + 1`)
	assert.Contains(t, s.sql, "WHERE id = $")
	assert.True(t, strings.HasSuffix(s.sql, `RETURNING "count"`), s.sql)
	assert.Contains(t, s.vars, enum.TrackerValueOpened)
	assert.Contains(t, s.vars, "trk")
}

func TestCampaignRepository_MarkTargetGroupSent(t *testing.T) {
	db, recorded := dryRunDB(t)
	repo := NewCampaignRepository(db)

	sentAt := time.Date(2026, 3, 7, 9, 5, 0, 0, time.UTC)
	require.NoError(t, repo.MarkTargetGroupSent(context.Background(), "link", sentAt))

	require.Len(t, *recorded, 1)
	s := (*recorded)[0]
	assert.Contains(t, s.sql, `SET "sent_at"=$1`)
	assert.Contains(t, s.sql, "sent_at IS NULL")
	require.Len(t, s.vars, 2)
	assert.Equal(t, "link", s.vars[1])
}

func TestEmailTemplateRepository_CreateKeepsFalseFlags(t *testing.T) {
	db, recorded := dryRunDB(t)
	repo := NewEmailTemplateRepository(db)

	template := &models.EmailTemplate{Name: "tpl", FromEmail: "it@corp.example", HasOpenTracker: false}
	require.NoError(t, repo.Create(context.Background(), template))

	require.NotEmpty(t, *recorded)
	s := (*recorded)[0]
	assert.True(t, strings.HasPrefix(s.sql, `INSERT INTO "email_templates"`), s.sql)
	assert.Equal(t, false, insertedValue(t, s, "has_open_tracker"))

	template = &models.EmailTemplate{Name: "tpl2", HasOpenTracker: true}
	require.NoError(t, repo.Create(context.Background(), template))
	assert.Equal(t, true, insertedValue(t, (*recorded)[len(*recorded)-1], "has_open_tracker"))
}

func TestAttachmentRepository_CreateKeepsStaticFlag(t *testing.T) {
	db, recorded := dryRunDB(t)
	repo := NewAttachmentRepository(db)

	require.NoError(t, repo.Create(context.Background(), &models.Attachment{Name: "invoice.pdf", Buildable: false}))

	require.Len(t, *recorded, 1)
	assert.Equal(t, false, insertedValue(t, (*recorded)[0], "buildable"))
}
