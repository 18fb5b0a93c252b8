package redis

const (
	// insertSampleScript atomically stores a sample and refreshes the worker's
	// last known position. Presence only follows samples newer than both the
	// last position and the last time the worker was marked offline.
	insertSampleScript = `
local locations_key = KEYS[1]   -- fieldtrack:locations:{userID}
local worker_key = KEYS[2]      -- fieldtrack:worker:{userID}
local online_set = KEYS[3]      -- fieldtrack:workers:online

local user_id = ARGV[1]
local score = tonumber(ARGV[2])
local member = ARGV[3]
local latitude = ARGV[4]
local longitude = ARGV[5]
local timestamp = ARGV[6]
local online = ARGV[7]

redis.call('ZADD', locations_key, score, member)

-- Only move the last known position forward in time
local last_score = tonumber(redis.call('HGET', worker_key, 'last_score') or '-1')
if score < last_score then
  return 'OK'
end

redis.call('HSET', worker_key,
  'user_id', user_id,
  'latitude', latitude,
  'longitude', longitude,
  'last_seen', timestamp,
  'last_score', ARGV[2]
)

-- Backlog captured before the worker went offline must not bring them back
local offline_score = tonumber(redis.call('HGET', worker_key, 'offline_score') or '-1')
if score <= offline_score then
  return 'OK'
end

redis.call('HSET', worker_key, 'is_online', online)
if online == '1' then
  redis.call('SADD', online_set, user_id)
else
  redis.call('SREM', online_set, user_id)
end

return 'OK'
`

	// setOnlineScript atomically sets a worker's presence. Going offline
	// stamps offline_score so older samples cannot restore presence.
	setOnlineScript = `
local worker_key = KEYS[1]      -- fieldtrack:worker:{userID}
local online_set = KEYS[2]      -- fieldtrack:workers:online

local user_id = ARGV[1]
local online = ARGV[2]
local now_score = ARGV[3]

redis.call('HSET', worker_key, 'user_id', user_id, 'is_online', online)
if online == '1' then
  redis.call('HDEL', worker_key, 'offline_score')
  redis.call('SADD', online_set, user_id)
else
  redis.call('HSET', worker_key, 'offline_score', now_score)
  redis.call('SREM', online_set, user_id)
end

return 'OK'
`

	// createActiveSessionScript creates an active session unless the user
	// already has one. Returns {1, id} when created, {0, existing_id} otherwise.
	createActiveSessionScript = `
local active_key = KEYS[1]      -- fieldtrack:sessions:active:{userID}
local session_key = KEYS[2]     -- fieldtrack:session:{sessionID}
local user_index = KEYS[3]      -- fieldtrack:sessions:user:{userID}

local session_id = ARGV[1]
local user_id = ARGV[2]
local started_at = ARGV[3]
local score = ARGV[4]

local existing = redis.call('GET', active_key)
if existing then
  return {0, existing}
end

redis.call('HSET', session_key,
  'id', session_id,
  'user_id', user_id,
  'started_at', started_at,
  'status', 'active',
  'total_distance_km', '0'
)
redis.call('SET', active_key, session_id)
redis.call('ZADD', user_index, score, session_id)

return {1, session_id}
`

	// completeSessionScript marks a session completed and releases the
	// user's active slot. Returns 0 when the session does not exist.
	completeSessionScript = `
local session_key = KEYS[1]     -- fieldtrack:session:{sessionID}
local active_key = KEYS[2]      -- fieldtrack:sessions:active:{userID}

local session_id = ARGV[1]
local ended_at = ARGV[2]
local distance = ARGV[3]

if redis.call('EXISTS', session_key) == 0 then
  return 0
end

if redis.call('HGET', session_key, 'status') ~= 'completed' then
  redis.call('HSET', session_key,
    'ended_at', ended_at,
    'status', 'completed',
    'total_distance_km', distance
  )
end

if redis.call('GET', active_key) == session_id then
  redis.call('DEL', active_key)
end

return 1
`
)
