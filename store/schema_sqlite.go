package store

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS robots (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    robo_id     TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    robot_type  TEXT NOT NULL DEFAULT 'inspection',
    status      TEXT NOT NULL DEFAULT 'available',
    is_active   INTEGER NOT NULL DEFAULT 1,
    emergency   INTEGER NOT NULL DEFAULT 0,
    speak_start INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS robot_locations (
    robot_id      INTEGER PRIMARY KEY REFERENCES robots(id),
    location_data TEXT NOT NULL DEFAULT '{}',
    updated_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS rim_types (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    is_active   INTEGER NOT NULL DEFAULT 1,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS schedules (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    robot_id       INTEGER NOT NULL REFERENCES robots(id),
    location       TEXT NOT NULL,
    scheduled_date TEXT NOT NULL,
    scheduled_time TEXT NOT NULL,
    end_time       TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'scheduled',
    is_canceled    INTEGER NOT NULL DEFAULT 0,
    revision       INTEGER NOT NULL DEFAULT 1,
    created_at     TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at     TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_schedules_slot ON schedules(robot_id, location, scheduled_date);
CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);

CREATE TABLE IF NOT EXISTS inspections (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    schedule_id       INTEGER NOT NULL REFERENCES schedules(id),
    rim_id            TEXT NOT NULL UNIQUE,
    rim_type_id       INTEGER REFERENCES rim_types(id),
    image             TEXT NOT NULL DEFAULT '',
    is_defect         INTEGER NOT NULL DEFAULT 0,
    description       TEXT NOT NULL DEFAULT '',
    is_human_verified INTEGER NOT NULL DEFAULT 0,
    false_detected    INTEGER NOT NULL DEFAULT 0,
    correct_label     TEXT,
    user_description  TEXT NOT NULL DEFAULT '',
    is_approved       INTEGER NOT NULL DEFAULT 0,
    verified_at       TEXT,
    inspected_at      TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_inspections_schedule ON inspections(schedule_id);

CREATE TABLE IF NOT EXISTS feedback_samples (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    inspection_id INTEGER NOT NULL REFERENCES inspections(id),
    image         TEXT NOT NULL,
    label         TEXT NOT NULL,
    bucket        TEXT NOT NULL,
    created_at    TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS emergency_stops (
    robot_id          INTEGER PRIMARY KEY REFERENCES robots(id),
    is_emergency_stop INTEGER NOT NULL DEFAULT 0,
    updated_at        TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);

CREATE TABLE IF NOT EXISTS profiles (
    id                 INTEGER PRIMARY KEY AUTOINCREMENT,
    robot_id           INTEGER NOT NULL REFERENCES robots(id),
    name               TEXT NOT NULL,
    calibration_status INTEGER NOT NULL DEFAULT 0,
    created_at         TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    updated_at         TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_profiles_robot ON profiles(robot_id);

CREATE TABLE IF NOT EXISTS calibrate_hands (
    profile_id INTEGER NOT NULL REFERENCES profiles(id),
    hand       TEXT NOT NULL,
    is_active  INTEGER NOT NULL DEFAULT 0,
    updated_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    PRIMARY KEY (profile_id, hand)
);

CREATE TABLE IF NOT EXISTS calibration_points (
    profile_id INTEGER NOT NULL REFERENCES profiles(id),
    hand       TEXT NOT NULL,
    point      TEXT NOT NULL,
    is_active  INTEGER NOT NULL DEFAULT 0,
    data       TEXT,
    updated_at TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    PRIMARY KEY (profile_id, hand, point)
);

CREATE TABLE IF NOT EXISTS deferred_tasks (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    schedule_id INTEGER NOT NULL,
    kind        TEXT NOT NULL,
    revision    INTEGER NOT NULL DEFAULT 1,
    eta         INTEGER NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending',
    attempts    INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    claimed_at  INTEGER,
    finished_at INTEGER,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_deferred_due ON deferred_tasks(status, eta);

CREATE TABLE IF NOT EXISTS outbox (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    topic       TEXT NOT NULL,
    payload     BLOB NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    msg_key     TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime')),
    sent_at     TEXT
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at);

CREATE TABLE IF NOT EXISTS audit_log (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_type TEXT NOT NULL,
    entity_id   INTEGER NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TEXT NOT NULL DEFAULT (datetime('now','localtime'))
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`
