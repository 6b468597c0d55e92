package store

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS robots (
    id          BIGSERIAL PRIMARY KEY,
    robo_id     TEXT NOT NULL UNIQUE,
    name        TEXT NOT NULL DEFAULT '',
    robot_type  TEXT NOT NULL DEFAULT 'inspection',
    status      TEXT NOT NULL DEFAULT 'available',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    emergency   BOOLEAN NOT NULL DEFAULT FALSE,
    speak_start BOOLEAN NOT NULL DEFAULT FALSE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS robot_locations (
    robot_id      BIGINT PRIMARY KEY REFERENCES robots(id),
    location_data TEXT NOT NULL DEFAULT '{}',
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS rim_types (
    id          BIGSERIAL PRIMARY KEY,
    name        TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    is_active   BOOLEAN NOT NULL DEFAULT TRUE,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS schedules (
    id             BIGSERIAL PRIMARY KEY,
    robot_id       BIGINT NOT NULL REFERENCES robots(id),
    location       TEXT NOT NULL,
    scheduled_date TEXT NOT NULL,
    scheduled_time TEXT NOT NULL,
    end_time       TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'scheduled',
    is_canceled    BOOLEAN NOT NULL DEFAULT FALSE,
    revision       BIGINT NOT NULL DEFAULT 1,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_schedules_slot ON schedules(robot_id, location, scheduled_date);
CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);

CREATE TABLE IF NOT EXISTS inspections (
    id                BIGSERIAL PRIMARY KEY,
    schedule_id       BIGINT NOT NULL REFERENCES schedules(id),
    rim_id            TEXT NOT NULL UNIQUE,
    rim_type_id       BIGINT REFERENCES rim_types(id),
    image             TEXT NOT NULL DEFAULT '',
    is_defect         BOOLEAN NOT NULL DEFAULT FALSE,
    description       TEXT NOT NULL DEFAULT '',
    is_human_verified BOOLEAN NOT NULL DEFAULT FALSE,
    false_detected    BOOLEAN NOT NULL DEFAULT FALSE,
    correct_label     TEXT,
    user_description  TEXT NOT NULL DEFAULT '',
    is_approved       BOOLEAN NOT NULL DEFAULT FALSE,
    verified_at       TIMESTAMPTZ,
    inspected_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_inspections_schedule ON inspections(schedule_id);

CREATE TABLE IF NOT EXISTS feedback_samples (
    id            BIGSERIAL PRIMARY KEY,
    inspection_id BIGINT NOT NULL REFERENCES inspections(id),
    image         TEXT NOT NULL,
    label         TEXT NOT NULL,
    bucket        TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS emergency_stops (
    robot_id          BIGINT PRIMARY KEY REFERENCES robots(id),
    is_emergency_stop BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at        TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS profiles (
    id                 BIGSERIAL PRIMARY KEY,
    robot_id           BIGINT NOT NULL REFERENCES robots(id),
    name               TEXT NOT NULL,
    calibration_status BOOLEAN NOT NULL DEFAULT FALSE,
    created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_profiles_robot ON profiles(robot_id);

CREATE TABLE IF NOT EXISTS calibrate_hands (
    profile_id BIGINT NOT NULL REFERENCES profiles(id),
    hand       TEXT NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT FALSE,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (profile_id, hand)
);

CREATE TABLE IF NOT EXISTS calibration_points (
    profile_id BIGINT NOT NULL REFERENCES profiles(id),
    hand       TEXT NOT NULL,
    point      TEXT NOT NULL,
    is_active  BOOLEAN NOT NULL DEFAULT FALSE,
    data       TEXT,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (profile_id, hand, point)
);

CREATE TABLE IF NOT EXISTS deferred_tasks (
    id          BIGSERIAL PRIMARY KEY,
    schedule_id BIGINT NOT NULL,
    kind        TEXT NOT NULL,
    revision    BIGINT NOT NULL DEFAULT 1,
    eta         BIGINT NOT NULL,
    status      TEXT NOT NULL DEFAULT 'pending',
    attempts    INTEGER NOT NULL DEFAULT 0,
    last_error  TEXT NOT NULL DEFAULT '',
    claimed_at  BIGINT,
    finished_at BIGINT,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_deferred_due ON deferred_tasks(status, eta);

CREATE TABLE IF NOT EXISTS outbox (
    id          BIGSERIAL PRIMARY KEY,
    topic       TEXT NOT NULL,
    payload     BYTEA NOT NULL,
    msg_type    TEXT NOT NULL DEFAULT '',
    msg_key     TEXT NOT NULL DEFAULT '',
    retries     INTEGER NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    sent_at     TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON outbox(sent_at) WHERE sent_at IS NULL;

CREATE TABLE IF NOT EXISTS audit_log (
    id          BIGSERIAL PRIMARY KEY,
    entity_type TEXT NOT NULL,
    entity_id   BIGINT NOT NULL DEFAULT 0,
    action      TEXT NOT NULL,
    old_value   TEXT NOT NULL DEFAULT '',
    new_value   TEXT NOT NULL DEFAULT '',
    actor       TEXT NOT NULL DEFAULT 'system',
    created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_audit_entity ON audit_log(entity_type, entity_id);
`
