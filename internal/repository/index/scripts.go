package index

import "github.com/kailas-cloud/entsearch/internal/db"

// KEYS: members, doc, stats. ARGV: id, scoreMs, type, field/value pairs...
// Returns 1 when the entity was not a member before.
var putScript = db.NewScript("index_put", `
local added = redis.call('ZADD', KEYS[1], ARGV[2], ARGV[1])
redis.call('DEL', KEYS[2])
redis.call('HSET', KEYS[2], unpack(ARGV, 4))
if added == 1 then
  redis.call('HINCRBY', KEYS[3], 'total', 1)
  redis.call('HINCRBY', KEYS[3], 'count:' .. ARGV[3], 1)
end
redis.call('HSET', KEYS[3], 'updated_at', ARGV[2])
return added
`)

// KEYS: members, doc, stats. ARGV: id, type, nowMs.
// Returns 1 when a member was removed.
var removeScript = db.NewScript("index_remove", `
local removed = redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
if removed == 1 then
  redis.call('HINCRBY', KEYS[3], 'total', -1)
  redis.call('HINCRBY', KEYS[3], 'count:' .. ARGV[2], -1)
  redis.call('HSET', KEYS[3], 'updated_at', ARGV[3])
end
return removed
`)

// KEYS: members, doc, stats. ARGV: id, type, nowMs, cutoffMs.
// Removes the member only if it is still older than the cutoff, so that a
// live update racing with a reindex prune survives.
var pruneScript = db.NewScript("index_prune", `
local score = redis.call('ZSCORE', KEYS[1], ARGV[1])
if not score or tonumber(score) >= tonumber(ARGV[4]) then
  return 0
end
redis.call('ZREM', KEYS[1], ARGV[1])
redis.call('DEL', KEYS[2])
redis.call('HINCRBY', KEYS[3], 'total', -1)
redis.call('HINCRBY', KEYS[3], 'count:' .. ARGV[2], -1)
redis.call('HSET', KEYS[3], 'updated_at', ARGV[3])
return 1
`)
