package redis

import "github.com/go-redis/redis/v8"

// Every counter and conditional write runs as one Lua script so Redis
// executes it without interleaving other commands.

// createUserScript writes a user hash unless the key already exists.
//
// KEYS[1] user hash; ARGV field/value pairs.
var createUserScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// hsetIfExistsScript sets fields on an existing hash only.
//
// KEYS[1] hash; ARGV field/value pairs.
var hsetIfExistsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV))
return 1
`)

// nextNumberScript issues the next number of a counter. A later year
// restarts it at 1; an earlier year is served from the stored one.
//
// KEYS[1] user hash, KEYS[2] sequence hash.
// ARGV type, year, default prefix, max number, updated at.
// Returns {0} for a missing user, {-1} when exhausted, else
// {1, prefix, n, year}.
var nextNumberScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0}
end
local t = ARGV[1]
local year = tonumber(ARGV[2])
local prefix = redis.call('HGET', KEYS[2], t .. ':prefix') or ARGV[3]
local stored = tonumber(redis.call('HGET', KEYS[2], t .. ':year') or '0')
local n = tonumber(redis.call('HGET', KEYS[2], t .. ':next') or '1')
if stored < year then
  n = 1
else
  year = stored
  if n < 1 then
    n = 1
  end
end
if n > tonumber(ARGV[4]) then
  return {-1}
end
redis.call('HSET', KEYS[2],
  t .. ':prefix', prefix,
  t .. ':year', year,
  t .. ':next', n + 1,
  t .. ':updated', ARGV[5])
return {1, prefix, n, year}
`)

// setPrefixScript changes a counter's prefix without touching its value.
//
// KEYS[1] user hash, KEYS[2] sequence hash; ARGV type, prefix, updated at.
var setPrefixScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
redis.call('HSET', KEYS[2], ARGV[1] .. ':prefix', ARGV[2], ARGV[1] .. ':updated', ARGV[3])
return 1
`)

// rolloverLua zeroes the period counters when the stored period started
// before ARGV[3]. It never moves the period back.
const rolloverLua = `
local reset = tonumber(redis.call('HGET', KEYS[1], 'last_reset_date') or '0')
local period = tonumber(ARGV[3])
if reset < period then
  redis.call('HSET', KEYS[1],
    'invoices_this_month', 0,
    'quotes_this_month', 0,
    'expenses_this_month', 0,
    'last_reset_date', period)
end
`

// reserveScript consumes one unit of a metric when it is under limit.
//
// KEYS[1] user hash; ARGV field, limit (negative for unlimited),
// period start in unix seconds.
// Returns {0} for a missing user, else {1, allowed, current}.
var reserveScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0}
end
` + rolloverLua + `
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
local limit = tonumber(ARGV[2])
if limit >= 0 and current >= limit then
  return {1, 0, current}
end
return {1, 1, redis.call('HINCRBY', KEYS[1], ARGV[1], 1)}
`)

// releaseScript returns one unit of a metric, never going below zero.
//
// KEYS[1] user hash; ARGV field, unused, period start in unix seconds.
// Returns {0} for a missing user, else {1, current}.
var releaseScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0}
end
` + rolloverLua + `
local current = tonumber(redis.call('HGET', KEYS[1], ARGV[1]) or '0')
if current > 0 then
  current = redis.call('HINCRBY', KEYS[1], ARGV[1], -1)
end
return {1, current}
`)

// adjustClientsScript adds a delta to the clients count, clamped at zero.
// A positive delta that would pass a non-negative limit changes nothing.
//
// KEYS[1] user hash; ARGV delta, limit. Returns {1, allowed, current}.
var adjustClientsScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return {0}
end
local count = tonumber(redis.call('HGET', KEYS[1], 'clients_count') or '0')
local delta = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
if delta > 0 and limit >= 0 and count + delta > limit then
  return {1, 0, count}
end
local current = count + delta
if current < 0 then
  current = 0
end
redis.call('HSET', KEYS[1], 'clients_count', current)
return {1, 1, current}
`)

// createDocumentScript stores a document and claims its number.
//
// KEYS[1] user hash, KEYS[2] document hash, KEYS[3] number index,
// KEYS[4] user document index, KEYS[5] due index.
// ARGV id, number, data, status, created score, due score or "".
// Returns 0 for a missing user, -1 for a duplicate, 1 when stored.
var createDocumentScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return 0
end
if redis.call('EXISTS', KEYS[2]) == 1 then
  return -1
end
if redis.call('HSETNX', KEYS[3], ARGV[2], ARGV[1]) == 0 then
  return -1
end
redis.call('HSET', KEYS[2], 'data', ARGV[3], 'status', ARGV[4], 'number', ARGV[2])
redis.call('ZADD', KEYS[4], ARGV[5], ARGV[1])
if ARGV[6] ~= '' then
  redis.call('ZADD', KEYS[5], ARGV[6], ARGV[1])
end
return 1
`)

// updateDocumentScript replaces a document if its stored status is the
// expected one.
//
// KEYS[1] document hash, KEYS[2] due index of the expected status,
// KEYS[3] due index of the new status.
// ARGV id, expected status, data, new status, due score or "".
// Returns 0 when missing, -1 on a status mismatch, 1 when written.
var updateDocumentScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 0
end
if status ~= ARGV[2] then
  return -1
end
redis.call('HSET', KEYS[1], 'data', ARGV[3], 'status', ARGV[4])
redis.call('ZREM', KEYS[2], ARGV[1])
if ARGV[5] ~= '' then
  redis.call('ZADD', KEYS[3], ARGV[5], ARGV[1])
end
return 1
`)

// deleteDocumentScript removes a document and frees its number if its
// stored status is the expected one.
//
// KEYS[1] document hash, KEYS[2] number index, KEYS[3] user document
// index, KEYS[4] due index of the expected status.
// ARGV id, expected status.
var deleteDocumentScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return 0
end
if status ~= ARGV[2] then
  return -1
end
local number = redis.call('HGET', KEYS[1], 'number')
if number then
  redis.call('HDEL', KEYS[2], number)
end
redis.call('DEL', KEYS[1])
redis.call('ZREM', KEYS[3], ARGV[1])
redis.call('ZREM', KEYS[4], ARGV[1])
return 1
`)

func scripts() []*redis.Script {
	return []*redis.Script{
		createUserScript,
		hsetIfExistsScript,
		nextNumberScript,
		setPrefixScript,
		reserveScript,
		releaseScript,
		adjustClientsScript,
		createDocumentScript,
		updateDocumentScript,
		deleteDocumentScript,
	}
}
