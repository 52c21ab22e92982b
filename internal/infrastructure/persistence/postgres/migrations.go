// Package postgres implements the PostgreSQL persistence layer for Hemis Student Hub.
package postgres

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE USERS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create users table
-- Version: 001

CREATE TABLE IF NOT EXISTS users (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    username VARCHAR(64) NOT NULL UNIQUE,
    role VARCHAR(20) NOT NULL DEFAULT 'student',
    password_hash VARCHAR(100) NOT NULL DEFAULT '',

    -- HEMIS credentials, stored recoverable: re-auth after token expiry
    -- is impossible without the original password
    hemis_login VARCHAR(64) NOT NULL DEFAULT '',
    hemis_password VARCHAR(128) NOT NULL DEFAULT '',
    hemis_token TEXT NOT NULL DEFAULT '',

    -- One Telegram chat belongs to at most one user
    telegram_chat_id BIGINT UNIQUE,

    full_name VARCHAR(200) NOT NULL DEFAULT '',
    group_name VARCHAR(100) NOT NULL DEFAULT '',
    faculty VARCHAR(200) NOT NULL DEFAULT '',
    specialty VARCHAR(200) NOT NULL DEFAULT '',
    level_name VARCHAR(100) NOT NULL DEFAULT '',
    gpa VARCHAR(10) NOT NULL DEFAULT '',
    phone VARCHAR(30) NOT NULL DEFAULT '',
    address VARCHAR(300) NOT NULL DEFAULT '',
    birth_date VARCHAR(10) NOT NULL DEFAULT '',
    image_url TEXT NOT NULL DEFAULT '',

    last_synced_at TIMESTAMP WITH TIME ZONE,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_role CHECK (role IN ('student', 'teacher', 'admin'))
);

CREATE INDEX IF NOT EXISTS idx_users_username ON users(username);
CREATE INDEX IF NOT EXISTS idx_users_telegram_chat_id ON users(telegram_chat_id) WHERE telegram_chat_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_users_hemis_login ON users(hemis_login) WHERE hemis_login != '';
`

const migration001Down = `
DROP TABLE IF EXISTS users;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACADEMIC RECORDS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create mirrored academic records
-- Version: 002
-- Schedule, attendance and tasks are replaced wholesale per (user, semester)
-- on every sync, so none of these tables carries its own update timestamps.

CREATE TABLE IF NOT EXISTS semesters (
    id SERIAL PRIMARY KEY,
    code VARCHAR(20) NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL DEFAULT '',
    current BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_semesters_current ON semesters(current) WHERE current;

CREATE TABLE IF NOT EXISTS weeks (
    id SERIAL PRIMARY KEY,
    remote_id BIGINT NOT NULL UNIQUE,
    name VARCHAR(100) NOT NULL DEFAULT '',
    start_date TIMESTAMP WITH TIME ZONE NOT NULL,
    end_date TIMESTAMP WITH TIME ZONE NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_weeks_start_date ON weeks(start_date);

CREATE TABLE IF NOT EXISTS subjects (
    id SERIAL PRIMARY KEY,
    name VARCHAR(300) NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS schedule_entries (
    id SERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    semester_id INTEGER NOT NULL REFERENCES semesters(id) ON DELETE CASCADE,
    week_remote_id BIGINT NOT NULL DEFAULT 0,
    subject_id INTEGER NOT NULL REFERENCES subjects(id),
    week_day VARCHAR(20) NOT NULL DEFAULT '',
    start_time VARCHAR(5) NOT NULL DEFAULT '',
    end_time VARCHAR(5) NOT NULL DEFAULT '',
    teacher VARCHAR(200) NOT NULL DEFAULT '',
    auditorium VARCHAR(100) NOT NULL DEFAULT '',
    lesson_type VARCHAR(100) NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_schedule_user_semester ON schedule_entries(user_id, semester_id);

CREATE TABLE IF NOT EXISTS attendance_records (
    id SERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    semester_id INTEGER NOT NULL REFERENCES semesters(id) ON DELETE CASCADE,
    subject_id INTEGER NOT NULL REFERENCES subjects(id),
    lesson_date TIMESTAMP WITH TIME ZONE,
    hours INTEGER NOT NULL DEFAULT 2,
    excused BOOLEAN NOT NULL DEFAULT FALSE,
    teacher VARCHAR(200) NOT NULL DEFAULT '',
    lesson_type VARCHAR(100) NOT NULL DEFAULT '',

    CONSTRAINT valid_hours CHECK (hours > 0)
);

CREATE INDEX IF NOT EXISTS idx_attendance_user_semester ON attendance_records(user_id, semester_id);
CREATE INDEX IF NOT EXISTS idx_attendance_subject ON attendance_records(user_id, semester_id, subject_id);

CREATE TABLE IF NOT EXISTS tasks (
    id SERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    semester_id INTEGER NOT NULL REFERENCES semesters(id) ON DELETE CASCADE,
    subject_id INTEGER NOT NULL REFERENCES subjects(id),
    name VARCHAR(300) NOT NULL DEFAULT '',
    deadline TIMESTAMP WITH TIME ZONE,
    status VARCHAR(100) NOT NULL DEFAULT '',
    grade DECIMAL(6,2) NOT NULL DEFAULT 0,
    max_grade DECIMAL(6,2) NOT NULL DEFAULT 0,

    CONSTRAINT valid_grades CHECK (grade >= 0 AND max_grade >= 0)
);

CREATE INDEX IF NOT EXISTS idx_tasks_user_semester ON tasks(user_id, semester_id);
CREATE INDEX IF NOT EXISTS idx_tasks_deadline ON tasks(deadline) WHERE deadline IS NOT NULL;
`

const migration002Down = `
DROP TABLE IF EXISTS tasks;
DROP TABLE IF EXISTS attendance_records;
DROP TABLE IF EXISTS schedule_entries;
DROP TABLE IF EXISTS subjects;
DROP TABLE IF EXISTS weeks;
DROP TABLE IF EXISTS semesters;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE ESSAYS AND NOTIFICATION LOG
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create essay topics, submissions and the notification ledger
-- Version: 003

CREATE TABLE IF NOT EXISTS essay_topics (
    id SERIAL PRIMARY KEY,
    title VARCHAR(300) NOT NULL,
    description TEXT NOT NULL DEFAULT '',
    deadline TIMESTAMP WITH TIME ZONE NOT NULL,
    submission_type VARCHAR(20) NOT NULL DEFAULT 'text',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_submission_type CHECK (submission_type IN ('text', 'file'))
);

CREATE INDEX IF NOT EXISTS idx_essay_topics_deadline ON essay_topics(deadline);

CREATE TABLE IF NOT EXISTS submissions (
    id SERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    topic_id INTEGER NOT NULL REFERENCES essay_topics(id) ON DELETE CASCADE,
    content TEXT NOT NULL DEFAULT '',
    status VARCHAR(20) NOT NULL DEFAULT 'pending',

    ai_grade INTEGER NOT NULL DEFAULT 0,
    ai_feedback TEXT NOT NULL DEFAULT '',

    teacher_grade INTEGER NOT NULL DEFAULT 0,
    teacher_feedback TEXT NOT NULL DEFAULT '',
    has_teacher_grade BOOLEAN NOT NULL DEFAULT FALSE,

    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    -- One submission per student per topic; resubmission updates in place
    CONSTRAINT uq_submission_user_topic UNIQUE (user_id, topic_id),
    CONSTRAINT valid_status CHECK (status IN ('pending', 'ai_graded', 'appeal', 'teacher_review', 'done', 'resubmit')),
    CONSTRAINT valid_ai_grade CHECK (ai_grade >= 0 AND ai_grade <= 100),
    CONSTRAINT valid_teacher_grade CHECK (teacher_grade >= 0 AND teacher_grade <= 100)
);

CREATE INDEX IF NOT EXISTS idx_submissions_user ON submissions(user_id);
CREATE INDEX IF NOT EXISTS idx_submissions_topic_status ON submissions(topic_id, status);

-- Sent notifications. The unique pair is the at-most-once guarantee:
-- a restarted or concurrent process inserting the same key loses.
CREATE TABLE IF NOT EXISTS notification_log (
    id SERIAL PRIMARY KEY,
    user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
    notification_key VARCHAR(200) NOT NULL,
    sent_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT uq_notification_user_key UNIQUE (user_id, notification_key)
);

CREATE INDEX IF NOT EXISTS idx_notification_log_user ON notification_log(user_id);
`

const migration003Down = `
DROP TABLE IF EXISTS notification_log;
DROP TABLE IF EXISTS submissions;
DROP TABLE IF EXISTS essay_topics;
`
