package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pollinator/api/internal/model"
	"github.com/redis/go-redis/v9"
)

// createScript inserts the job hash and both index entries, or returns 0 if the key is taken.
// KEYS: job hash, user index, active index. ARGV: jobId, active member, updated, field/value pairs.
var createScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('HSET', KEYS[1], unpack(ARGV, 4))
redis.call('ZADD', KEYS[2], 0, ARGV[1])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[2])
return 1
`)

// updateScript applies a field merge if the current status is allowed.
// Returns 0 when missing, -1 on a status conflict, otherwise the full hash.
// KEYS: job hash, active index. ARGV: updated, active member, conditional flag,
// allowed status count, allowed statuses..., field/value pairs.
var updateScript = redis.NewScript(fmt.Sprintf(`
local current = redis.call('HGET', KEYS[1], 'status')
if not current then
  return 0
end
local n = tonumber(ARGV[4])
if ARGV[3] == '1' then
  local ok = false
  for i = 5, 4 + n do
    if ARGV[i] == current then
      ok = true
    end
  end
  if not ok then
    return -1
  end
end
redis.call('HSET', KEYS[1], unpack(ARGV, 5 + n))
local status = redis.call('HGET', KEYS[1], 'status')
if status == '%s' or status == '%s' then
  redis.call('ZREM', KEYS[2], ARGV[2])
else
  redis.call('ZADD', KEYS[2], ARGV[1], ARGV[2])
end
return redis.call('HGETALL', KEYS[1])
`, model.JobStatusSpeechGenerated, model.JobStatusFailed))

// RedisStore keeps each job in a hash, with a per-user lexicographic index for
// queries and a score-by-last-write index of non-terminal jobs.
type RedisStore struct {
	redis  *redis.Client
	prefix string
	now    func() time.Time
}

// NewRedisStore creates a store whose keys live under the given table name
func NewRedisStore(redisClient *redis.Client, tableName string) *RedisStore {
	return &RedisStore{
		redis:  redisClient,
		prefix: tableName,
		now:    time.Now,
	}
}

// userSegment length-prefixes a userId so no value can reach into another
// user's keys or the shared active index.
func userSegment(userID string) string {
	return strconv.Itoa(len(userID)) + ":" + userID
}

func (s *RedisStore) jobKey(userID, jobID string) string {
	return fmt.Sprintf("%s:job:%s:%s", s.prefix, userSegment(userID), jobID)
}

func (s *RedisStore) userIndexKey(userID string) string {
	return fmt.Sprintf("%s:user:%s", s.prefix, userSegment(userID))
}

func (s *RedisStore) activeKey() string {
	return s.prefix + ":active"
}

func activeMember(userID, jobID string) string {
	return userSegment(userID) + ":" + jobID
}

func parseActiveMember(member string) (userID, jobID string, ok bool) {
	size, rest, found := strings.Cut(member, ":")
	if !found {
		return "", "", false
	}
	n, err := strconv.Atoi(size)
	if err != nil || n < 0 || len(rest) <= n || rest[n] != ':' {
		return "", "", false
	}
	return rest[:n], rest[n+1:], true
}

func unavailable(op string, err error) error {
	return fmt.Errorf("failed to %s: %w: %v", op, model.ErrStoreUnavailable, err)
}

func (s *RedisStore) Create(ctx context.Context, job *model.Job) error {
	if job.Updated == 0 {
		job.Updated = s.now().UnixMilli()
	}
	fields, err := encodeJob(job)
	if err != nil {
		return fmt.Errorf("failed to encode job: %w", err)
	}

	args := []interface{}{job.JobID, activeMember(job.UserID, job.JobID), job.Updated}
	args = append(args, fields...)

	keys := []string{s.jobKey(job.UserID, job.JobID), s.userIndexKey(job.UserID), s.activeKey()}
	created, err := createScript.Run(ctx, s.redis, keys, args...).Int()
	if err != nil {
		return unavailable("create job", err)
	}
	if created == 0 {
		return model.ErrAlreadyExists
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, userID, jobID string) (*model.Job, error) {
	data, err := s.redis.HGetAll(ctx, s.jobKey(userID, jobID)).Result()
	if err != nil {
		return nil, unavailable("get job", err)
	}
	if len(data) == 0 {
		return nil, model.ErrJobNotFound
	}
	return decodeJob(data)
}

func (s *RedisStore) Update(ctx context.Context, userID, jobID string, changes Changes) (*model.Job, error) {
	allowed, conditional, err := changes.precondition()
	if err != nil {
		return nil, err
	}

	updated := s.now().UnixMilli()
	args := []interface{}{updated, activeMember(userID, jobID), "0", len(allowed)}
	if conditional {
		args[2] = "1"
	}
	for _, st := range allowed {
		args = append(args, string(st))
	}

	fields, err := encodeChanges(changes)
	if err != nil {
		return nil, fmt.Errorf("failed to encode changes: %w", err)
	}
	args = append(args, "updated", updated)
	args = append(args, fields...)

	keys := []string{s.jobKey(userID, jobID), s.activeKey()}
	res, err := updateScript.Run(ctx, s.redis, keys, args...).Result()
	if err != nil {
		return nil, unavailable("update job", err)
	}

	switch v := res.(type) {
	case int64:
		if v == 0 {
			return nil, model.ErrJobNotFound
		}
		return nil, model.ErrStatusConflict
	case []interface{}:
		return decodeJob(pairsToMap(v))
	}
	return nil, fmt.Errorf("unexpected update result %T", res)
}

func (s *RedisStore) QueryByUser(ctx context.Context, userID string, limit int, cursor string) (*Page, error) {
	start := "-"
	if cursor != "" {
		start = "(" + cursor
	}
	by := &redis.ZRangeBy{Min: start, Max: "+"}
	if limit > 0 {
		by.Count = int64(limit + 1)
	}

	ids, err := s.redis.ZRangeByLex(ctx, s.userIndexKey(userID), by).Result()
	if err != nil {
		return nil, unavailable("query jobs", err)
	}

	page := &Page{Jobs: []*model.Job{}}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
		page.NextCursor = ids[len(ids)-1]
	}

	refs := make([][2]string, len(ids))
	for i, id := range ids {
		refs[i] = [2]string{userID, id}
	}
	page.Jobs, err = s.fetch(ctx, refs)
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (s *RedisStore) ListStale(ctx context.Context, before time.Time, limit int) ([]*model.Job, error) {
	by := &redis.ZRangeBy{Min: "-inf", Max: "(" + strconv.FormatInt(before.UnixMilli(), 10)}
	if limit > 0 {
		by.Count = int64(limit)
	}

	members, err := s.redis.ZRangeByScore(ctx, s.activeKey(), by).Result()
	if err != nil {
		return nil, unavailable("list stale jobs", err)
	}

	refs := make([][2]string, 0, len(members))
	for _, m := range members {
		userID, jobID, ok := parseActiveMember(m)
		if !ok {
			continue
		}
		refs = append(refs, [2]string{userID, jobID})
	}
	return s.fetch(ctx, refs)
}

// fetch loads several hashes in one round trip, skipping any that vanished
func (s *RedisStore) fetch(ctx context.Context, refs [][2]string) ([]*model.Job, error) {
	jobs := []*model.Job{}
	if len(refs) == 0 {
		return jobs, nil
	}

	pipe := s.redis.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(refs))
	for i, ref := range refs {
		cmds[i] = pipe.HGetAll(ctx, s.jobKey(ref[0], ref[1]))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable("fetch jobs", err)
	}

	for _, cmd := range cmds {
		data := cmd.Val()
		if len(data) == 0 {
			continue
		}
		job, err := decodeJob(data)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func encodeJob(job *model.Job) ([]interface{}, error) {
	files, err := json.Marshal(job.Files)
	if err != nil {
		return nil, err
	}
	outputs := job.Outputs
	if outputs == nil {
		outputs = []model.FileRef{}
	}
	outs, err := json.Marshal(outputs)
	if err != nil {
		return nil, err
	}

	fields := []interface{}{
		"userId", job.UserID,
		"jobId", job.JobID,
		"created", job.Created,
		"updated", job.Updated,
		"status", string(job.Status),
		"files", string(files),
		"outputs", string(outs),
	}
	if job.HasText != nil {
		fields = append(fields, "hasText", strconv.FormatBool(*job.HasText))
	}
	if job.Text != nil {
		fields = append(fields, "text", *job.Text)
	}
	if job.Error != nil {
		fields = append(fields, "error", *job.Error)
	}
	return fields, nil
}

func encodeChanges(c Changes) ([]interface{}, error) {
	var fields []interface{}
	if c.Status != "" {
		fields = append(fields, "status", string(c.Status))
	}
	if c.HasText != nil {
		fields = append(fields, "hasText", strconv.FormatBool(*c.HasText))
	}
	if c.Text != nil {
		fields = append(fields, "text", *c.Text)
	}
	if c.Outputs != nil {
		outs, err := json.Marshal(c.Outputs)
		if err != nil {
			return nil, err
		}
		fields = append(fields, "outputs", string(outs))
	}
	if c.Error != nil {
		fields = append(fields, "error", *c.Error)
	}
	return fields, nil
}

func decodeJob(data map[string]string) (*model.Job, error) {
	job := &model.Job{
		UserID:  data["userId"],
		JobID:   data["jobId"],
		Status:  model.JobStatus(data["status"]),
		Files:   []model.FileRef{},
		Outputs: []model.FileRef{},
	}

	var err error
	if job.Created, err = strconv.ParseInt(data["created"], 10, 64); err != nil {
		return nil, fmt.Errorf("failed to decode job %s: bad created: %w", job.JobID, err)
	}
	if v, ok := data["updated"]; ok {
		if job.Updated, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf("failed to decode job %s: bad updated: %w", job.JobID, err)
		}
	}
	if v := data["files"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Files); err != nil {
			return nil, fmt.Errorf("failed to decode job %s files: %w", job.JobID, err)
		}
	}
	if v := data["outputs"]; v != "" {
		if err := json.Unmarshal([]byte(v), &job.Outputs); err != nil {
			return nil, fmt.Errorf("failed to decode job %s outputs: %w", job.JobID, err)
		}
	}
	if v, ok := data["hasText"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("failed to decode job %s: bad hasText: %w", job.JobID, err)
		}
		job.HasText = &b
	}
	if v, ok := data["text"]; ok {
		job.Text = &v
	}
	if v, ok := data["error"]; ok {
		job.Error = &v
	}
	return job, nil
}

func pairsToMap(pairs []interface{}) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		out[k] = v
	}
	return out
}
