package sandbox

import (
	lua "github.com/yuin/gopher-lua"
)

// awaitSource resumes a coroutine until it is dead and returns its final
// values. Functions are wrapped in a fresh coroutine first; any other value is
// returned unchanged.
const awaitSource = `
local create, status, resume = coroutine.create, coroutine.status, coroutine.resume
return function(v, ...)
  if type(v) == "function" then v = create(v) end
  if type(v) ~= "thread" then return v end
  local args = {...}
  local res = {true}
  while status(v) ~= "dead" do
    res = {resume(v, unpack(args))}
    args = {}
    if not res[1] then error(res[2], 0) end
  end
  return unpack(res, 2)
end
`

func (s *State) awaitFunc() (lua.LValue, error) {
	if s.await != nil {
		return s.await, nil
	}
	results, err := s.callSource(awaitSource)
	if err != nil {
		return nil, err
	}
	s.await = results[0]
	return s.await, nil
}

func (s *State) callSource(source string) ([]lua.LValue, error) {
	fn, err := s.LoadString(source)
	if err != nil {
		return nil, err
	}
	return s.Call(fn)
}

// IsAwaitable reports whether v is a coroutine.
func IsAwaitable(v lua.LValue) bool {
	return v.Type() == lua.LTThread
}

// Await runs v to completion when it is a coroutine and returns its final
// values. Other values are returned as is.
func (s *State) Await(v lua.LValue) ([]lua.LValue, error) {
	await, err := s.awaitFunc()
	if err != nil {
		return nil, err
	}
	return s.Call(await, v)
}

// Spawn runs fn as a coroutine with args and waits for it to finish.
func (s *State) Spawn(fn lua.LValue, args ...lua.LValue) ([]lua.LValue, error) {
	await, err := s.awaitFunc()
	if err != nil {
		return nil, err
	}
	return s.Call(await, append([]lua.LValue{fn}, args...)...)
}
