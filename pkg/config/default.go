// Global database config.
package config

// The default number of frames held in the buffer pool.
const MaxPagesInBuffer = 32
