package database

import (
	"database/sql"
	"fmt"
	"log"

	"golang.org/x/crypto/bcrypt"

	"github.com/jcandido/hidrogest/backend/models"
)

func RunMigrations(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS admin_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS general_hydrometers (
			id TEXT PRIMARY KEY,
			name TEXT UNIQUE NOT NULL,
			notes TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS associates (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sequential_id INTEGER UNIQUE NOT NULL,
			name TEXT NOT NULL,
			address TEXT DEFAULT '',
			contact TEXT DEFAULT '',
			document_number TEXT DEFAULT '',
			type TEXT NOT NULL DEFAULT 'Associado',
			region TEXT DEFAULT '',
			hydrometer_id TEXT,
			is_active INTEGER DEFAULT 1,
			observations TEXT DEFAULT '',
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (hydrometer_id) REFERENCES general_hydrometers(id)
		)`,

		`CREATE TABLE IF NOT EXISTS periods (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code TEXT UNIQUE NOT NULL,
			name TEXT NOT NULL,
			consumption_label TEXT NOT NULL,
			reading_date DATETIME NOT NULL,
			due_date DATETIME NOT NULL,
			consumption_start DATETIME NOT NULL,
			consumption_end DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			associate_id INTEGER NOT NULL,
			period_id INTEGER NOT NULL,
			reading_date DATETIME NOT NULL,
			current_reading REAL NOT NULL,
			previous_reading REAL NOT NULL DEFAULT 0,
			consumption REAL NOT NULL DEFAULT 0,
			is_reset INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (associate_id) REFERENCES associates(id),
			FOREIGN KEY (period_id) REFERENCES periods(id)
		)`,

		`CREATE TABLE IF NOT EXISTS general_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			hydrometer_id TEXT NOT NULL,
			period_id INTEGER NOT NULL,
			reading_date DATETIME NOT NULL,
			current_reading REAL NOT NULL,
			previous_reading REAL NOT NULL DEFAULT 0,
			consumption REAL NOT NULL DEFAULT 0,
			is_reset INTEGER DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (hydrometer_id) REFERENCES general_hydrometers(id),
			FOREIGN KEY (period_id) REFERENCES periods(id)
		)`,

		`CREATE TABLE IF NOT EXISTS invoices (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			associate_id INTEGER NOT NULL,
			period_id INTEGER NOT NULL,
			reading_id INTEGER NOT NULL,
			consumption REAL NOT NULL,
			amount_due REAL NOT NULL,
			previous_reading REAL NOT NULL DEFAULT 0,
			invoice_date DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			payment_method TEXT,
			payment_date DATETIME,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (associate_id) REFERENCES associates(id),
			FOREIGN KEY (period_id) REFERENCES periods(id),
			FOREIGN KEY (reading_id) REFERENCES readings(id)
		)`,

		`CREATE TABLE IF NOT EXISTS tariffs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			associate_type TEXT UNIQUE NOT NULL,
			fixed_fee REAL NOT NULL DEFAULT 0,
			free_consumption REAL NOT NULL DEFAULT 0,
			standard_meters REAL NOT NULL DEFAULT 0,
			basic_tariff REAL NOT NULL DEFAULT 0,
			excess_tariff REAL NOT NULL DEFAULT 0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS app_settings (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			next_sequential_id INTEGER NOT NULL DEFAULT 1,
			regions TEXT NOT NULL DEFAULT '[]',
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS baseline_reset_logs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			entity_type TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			period_id INTEGER NOT NULL,
			performed_by TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY (period_id) REFERENCES periods(id)
		)`,

		// At most one reading/invoice per entity and period. The save path
		// upserts, the index catches anything that slips past it.
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_readings_associate_period ON readings(associate_id, period_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_general_readings_hydro_period ON general_readings(hydrometer_id, period_id)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_invoices_associate_period ON invoices(associate_id, period_id)`,

		`CREATE INDEX IF NOT EXISTS idx_periods_reading_date ON periods(reading_date)`,
		`CREATE INDEX IF NOT EXISTS idx_readings_period ON readings(period_id)`,
		`CREATE INDEX IF NOT EXISTS idx_general_readings_period ON general_readings(period_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_period ON invoices(period_id)`,
		`CREATE INDEX IF NOT EXISTS idx_invoices_status ON invoices(status)`,
		`CREATE INDEX IF NOT EXISTS idx_associates_hydrometer ON associates(hydrometer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_associates_active ON associates(is_active)`,
		`CREATE INDEX IF NOT EXISTS idx_reset_logs_period ON baseline_reset_logs(period_id)`,
	}

	for i, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration %d failed: %v", i+1, err)
		}
	}

	log.Println("Base tables and indexes created/verified")

	if err := seedSettings(db); err != nil {
		return fmt.Errorf("failed to seed settings: %v", err)
	}

	if err := seedTariffs(db); err != nil {
		return fmt.Errorf("failed to seed tariffs: %v", err)
	}

	if err := createDefaultAdmin(db); err != nil {
		return fmt.Errorf("failed to create default admin: %v", err)
	}

	log.Println("All migrations completed successfully")
	return nil
}

func seedSettings(db *sql.DB) error {
	_, err := db.Exec(`
		INSERT INTO app_settings (id, next_sequential_id, regions)
		VALUES (1, 1, '[]')
		ON CONFLICT(id) DO NOTHING
	`)
	return err
}

// seedTariffs guarantees every associate type has a schedule row the
// operators can edit. Values start at zero: a missing tariff bills the
// fixed fee only, which is zero until configured.
func seedTariffs(db *sql.DB) error {
	for _, associateType := range []string{
		models.AssociateTypeStandard,
		models.AssociateTypeEntity,
		models.AssociateTypeOther,
	} {
		_, err := db.Exec(`
			INSERT INTO tariffs (associate_type)
			VALUES (?)
			ON CONFLICT(associate_type) DO NOTHING
		`, associateType)
		if err != nil {
			return err
		}
	}
	return nil
}

func createDefaultAdmin(db *sql.DB) error {
	var count int
	if err := db.QueryRow("SELECT COUNT(*) FROM admin_users").Scan(&count); err != nil {
		return err
	}

	if count == 0 {
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte("admin123"), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		_, err = db.Exec(`
			INSERT INTO admin_users (username, password_hash)
			VALUES (?, ?)
		`, "admin", string(hashedPassword))
		if err != nil {
			return err
		}

		log.Println("Default admin user created (admin / admin123)")
		log.Println("IMPORTANT: Change the default password immediately!")
	}

	return nil
}
