// Package timeouts defines shared timeout constants used across the bot
// runtime so network boundaries agree on their budgets.
package timeouts

import "time"

// ReadHeader limits how long the webhook server waits for request headers.
const ReadHeader = 5 * time.Second

// Shutdown limits how long servers wait for in-flight work during graceful
// shutdown.
const Shutdown = 5 * time.Second

// AIRequest caps one LLM completion or transcription call.
const AIRequest = 60 * time.Second

// FoodDBRequest caps one USDA FoodData Central HTTP call.
const FoodDBRequest = 15 * time.Second

// Transcription caps a local speech-to-text command run.
const Transcription = 3 * time.Minute

// FileDownload caps fetching a Telegram file (voice, photo).
const FileDownload = 30 * time.Second

// BackgroundWrite caps detached writes that outlive the update handler.
const BackgroundWrite = 10 * time.Second
