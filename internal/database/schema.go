package database

// Schema is the MySQL DDL, applied in order by Migrate.  Capacity counters
// live in their own tables so that allocation is a single conditional
// UPDATE per counter.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS students (
		id          BIGINT UNSIGNED NOT NULL PRIMARY KEY,
		name        VARCHAR(191) NOT NULL DEFAULT '',
		trust_score INT NOT NULL DEFAULT 0,
		created_at  DATETIME NOT NULL,
		updated_at  DATETIME NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS trust_score_events (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		student_id     BIGINT UNSIGNED NOT NULL,
		reservation_id BIGINT UNSIGNED NULL,
		delta          INT NOT NULL,
		reason         VARCHAR(255) NOT NULL,
		actor_id       BIGINT UNSIGNED NULL,
		created_at     DATETIME NOT NULL,
		UNIQUE KEY uq_trust_reservation (reservation_id),
		KEY idx_trust_student (student_id, created_at),
		CONSTRAINT fk_trust_student FOREIGN KEY (student_id) REFERENCES students(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS categories (
		id   BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name VARCHAR(191) NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS foods (
		id          BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		name        VARCHAR(191) NOT NULL,
		price       BIGINT NOT NULL,
		category_id BIGINT UNSIGNED NULL,
		CONSTRAINT fk_food_category FOREIGN KEY (category_id) REFERENCES categories(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS menu_items (
		id                 BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		food_id            BIGINT UNSIGNED NOT NULL,
		menu_date          CHAR(10) NULL,
		weekday            TINYINT NULL,
		meal_type          VARCHAR(16) NOT NULL,
		time_slot_count    INT NOT NULL,
		time_slot_capacity INT NOT NULL,
		daily_capacity     INT NOT NULL,
		is_available       BOOLEAN NOT NULL DEFAULT TRUE,
		KEY idx_menu_date (menu_date, meal_type),
		KEY idx_menu_weekday (weekday, meal_type),
		CONSTRAINT fk_menu_food FOREIGN KEY (food_id) REFERENCES foods(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS time_slots (
		id           BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		menu_item_id BIGINT UNSIGNED NOT NULL,
		start_time   CHAR(5) NOT NULL,
		end_time     CHAR(5) NOT NULL,
		KEY idx_slot_item (menu_item_id),
		CONSTRAINT fk_slot_item FOREIGN KEY (menu_item_id) REFERENCES menu_items(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS voucher_settings (
		id    TINYINT UNSIGNED NOT NULL PRIMARY KEY,
		price BIGINT NOT NULL
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`INSERT IGNORE INTO voucher_settings (id, price) VALUES (1, 0)`,

	`CREATE TABLE IF NOT EXISTS slot_counters (
		time_slot_id  BIGINT UNSIGNED NOT NULL,
		reserved_date CHAR(10) NOT NULL,
		reserved      INT NOT NULL,
		PRIMARY KEY (time_slot_id, reserved_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS day_counters (
		menu_item_id  BIGINT UNSIGNED NOT NULL,
		reserved_date CHAR(10) NOT NULL,
		reserved      INT NOT NULL,
		PRIMARY KEY (menu_item_id, reserved_date)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS reservations (
		id            BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		student_id    BIGINT UNSIGNED NOT NULL,
		menu_item_id  BIGINT UNSIGNED NOT NULL,
		time_slot_id  BIGINT UNSIGNED NOT NULL,
		reserved_date CHAR(10) NOT NULL,
		meal_type     VARCHAR(16) NOT NULL,
		has_voucher   BOOLEAN NOT NULL DEFAULT FALSE,
		price         BIGINT NOT NULL,
		status        VARCHAR(24) NOT NULL,
		delivery_code VARCHAR(16) NULL,
		version       INT NOT NULL DEFAULT 0,
		ready_at      DATETIME NULL,
		picked_up_at  DATETIME NULL,
		created_at    DATETIME NOT NULL,
		updated_at    DATETIME NOT NULL,
		UNIQUE KEY uq_reservation_meal (student_id, reserved_date, meal_type),
		UNIQUE KEY uq_reservation_code (delivery_code),
		KEY idx_reservation_status (status, updated_at),
		KEY idx_reservation_kitchen (reserved_date, meal_type, status),
		CONSTRAINT fk_reservation_student FOREIGN KEY (student_id) REFERENCES students(id),
		CONSTRAINT fk_reservation_item FOREIGN KEY (menu_item_id) REFERENCES menu_items(id),
		CONSTRAINT fk_reservation_slot FOREIGN KEY (time_slot_id) REFERENCES time_slots(id)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,

	`CREATE TABLE IF NOT EXISTS payments (
		id             BIGINT UNSIGNED NOT NULL AUTO_INCREMENT PRIMARY KEY,
		reservation_id BIGINT UNSIGNED NOT NULL,
		user_id        BIGINT UNSIGNED NOT NULL,
		amount         BIGINT NOT NULL,
		authority      VARCHAR(64) NULL,
		ref_id         VARCHAR(64) NULL,
		status         VARCHAR(16) NOT NULL,
		error_message  VARCHAR(255) NULL,
		needs_review   BOOLEAN NOT NULL DEFAULT FALSE,
		created_at     DATETIME NOT NULL,
		updated_at     DATETIME NOT NULL,
		UNIQUE KEY uq_payment_authority (authority),
		KEY idx_payment_reservation (reservation_id, status)
	) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
}
