// Package config loads axrctl settings from an optional YAML file and
// overlays the environment variables the monitor has always honoured
// (LITE_AGENT_API_KEY, CHAT_ID, CHAT_API_KEY_MAP, AXELROD_AGENT_ADDRESS,
// BATCH_TRANSACTION_COUNT, SWAP_PARAMS) plus the AXR_* overrides.
package config
