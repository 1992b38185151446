package database

const schema = `
CREATE TABLE IF NOT EXISTS users (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    username VARCHAR(64) NOT NULL UNIQUE,
    email VARCHAR(255),
    role VARCHAR(16) NOT NULL DEFAULT 'user',
    paid_coins BIGINT NOT NULL DEFAULT 0,
    free_coins BIGINT NOT NULL DEFAULT 0,
    total_earned_coins BIGINT NOT NULL DEFAULT 0,
    total_spent_coins BIGINT NOT NULL DEFAULT 0,
    is_partner TINYINT(1) NOT NULL DEFAULT 0,
    is_flagged TINYINT(1) NOT NULL DEFAULT 0,
    is_banned TINYINT(1) NOT NULL DEFAULT 0,
    api_token VARCHAR(64) UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS coin_transactions (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    amount BIGINT NOT NULL,
    coin_type VARCHAR(8) NOT NULL,
    category VARCHAR(32) NOT NULL,
    description TEXT,
    metadata JSON,
    balance_after BIGINT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    KEY idx_tx_user_created (user_id, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS gifts (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    sender_id BIGINT NOT NULL,
    receiver_id BIGINT NOT NULL,
    stream_id VARCHAR(64),
    name VARCHAR(64) NOT NULL,
    coin_amount BIGINT NOT NULL,
    coin_type VARCHAR(8) NOT NULL,
    bonus_amount BIGINT NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (sender_id) REFERENCES users(id),
    FOREIGN KEY (receiver_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS chat_messages (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    stream_id VARCHAR(64),
    user_id BIGINT NOT NULL,
    receiver_id BIGINT,
    content TEXT NOT NULL,
    message_type VARCHAR(32) NOT NULL DEFAULT 'message',
    gift_amount BIGINT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS cashout_requests (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT NOT NULL,
    requested_coins BIGINT NOT NULL,
    usd_value DECIMAL(12,2) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'pending',
    fee_percentage DECIMAL(5,2) NOT NULL DEFAULT 0,
    fee_applied DECIMAL(12,2) NOT NULL DEFAULT 0,
    usd_after_fee DECIMAL(12,2) NOT NULL DEFAULT 0,
    payout_method VARCHAR(32),
    payout_details TEXT,
    transaction_ref VARCHAR(128),
    admin_notes TEXT,
    processed_at TIMESTAMP NULL,
    paid_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_cashout_status (status, created_at),
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS cashout_tiers (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    coin_amount BIGINT NOT NULL UNIQUE,
    usd_value DECIMAL(12,2) NOT NULL,
    processing_fee_percentage DECIMAL(5,2) NOT NULL DEFAULT 0,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS coin_packages (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    name VARCHAR(64) NOT NULL,
    coins BIGINT NOT NULL,
    amount_cents BIGINT NOT NULL,
    stripe_price_id VARCHAR(128),
    is_active TINYINT(1) NOT NULL DEFAULT 1,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS coin_orders (
    id CHAR(36) PRIMARY KEY,
    user_id BIGINT NOT NULL,
    package_id BIGINT,
    coins BIGINT NOT NULL,
    amount_cents BIGINT NOT NULL,
    provider VARCHAR(16) NOT NULL,
    status VARCHAR(16) NOT NULL DEFAULT 'created',
    checkout_session_id VARCHAR(128) UNIQUE,
    payment_intent_id VARCHAR(128),
    square_payment_id VARCHAR(128),
    paid_at TIMESTAMP NULL,
    fulfilled_at TIMESTAMP NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP,
    KEY idx_order_square (square_payment_id),
    FOREIGN KEY (user_id) REFERENCES users(id)
);

CREATE TABLE IF NOT EXISTS payment_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    provider VARCHAR(16) NOT NULL,
    event_id VARCHAR(128) NOT NULL,
    event_type VARCHAR(64) NOT NULL,
    payload MEDIUMTEXT,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    UNIQUE KEY uniq_provider_event (provider, event_id)
);

CREATE TABLE IF NOT EXISTS telemetry_events (
    id BIGINT AUTO_INCREMENT PRIMARY KEY,
    user_id BIGINT,
    event_type VARCHAR(64) NOT NULL,
    payload JSON,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`
