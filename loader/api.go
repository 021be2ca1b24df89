package loader

import (
	lua "github.com/yuin/gopher-lua"
)

// Marker values stored under kindKey so the compiler can tell constructor
// results apart from plain tables.
const (
	kindKey      = "__kind"
	kindPage     = "page"
	kindResponse = "response"
	kindCond     = "condition"
	kindEnd      = "end"
)

// registerAPI registers all Lua constructors and helpers as globals.
func registerAPI(L *lua.LState, coll *collector) {
	registerConstructors(L, coll)
	registerConditionHelpers(L)
}

func registerConstructors(L *lua.LState, coll *collector) {
	// Dialogue(id, "title") { Page{...}, ... } is curried: it returns a function
	// that takes the page list.
	L.SetGlobal("Dialogue", L.NewFunction(func(L *lua.LState) int {
		id := float64(L.CheckNumber(1))
		title := L.OptString(2, "")
		where := L.Where(1)
		L.Push(L.NewFunction(func(L *lua.LState) int {
			pages := L.CheckTable(1)
			coll.dialogues = append(coll.dialogues, rawDialogue{
				id: id, title: title, pages: pages, where: where,
			})
			return 0
		}))
		return 1
	}))

	// Page { label = "...", text = "...", branch = bool, requires = {...}, responses = {...} }
	L.SetGlobal("Page", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		tbl.RawSetString(kindKey, lua.LString(kindPage))
		L.Push(tbl)
		return 1
	}))

	// Response { text = "...", next = <page number | label | End>, requires = {...}, hooks = {...} }
	L.SetGlobal("Response", L.NewFunction(func(L *lua.LState) int {
		tbl := L.CheckTable(1)
		tbl.RawSetString(kindKey, lua.LString(kindResponse))
		L.Push(tbl)
		return 1
	}))

	// End is the end-of-conversation target.
	end := L.NewTable()
	end.RawSetString(kindKey, lua.LString(kindEnd))
	L.SetGlobal("End", end)
}

func registerConditionHelpers(L *lua.LState) {
	// When("predicate name", args...)
	L.SetGlobal("When", L.NewFunction(func(L *lua.LState) int {
		name := L.CheckString(1)
		args := L.NewTable()
		for i := 2; i <= L.GetTop(); i++ {
			args.Append(L.Get(i))
		}
		tbl := L.NewTable()
		tbl.RawSetString(kindKey, lua.LString(kindCond))
		tbl.RawSetString("name", lua.LString(name))
		tbl.RawSetString("args", args)
		tbl.RawSetString("negate", lua.LFalse)
		L.Push(tbl)
		return 1
	}))

	// Not(cond) returns a copy of cond with its result inverted.
	L.SetGlobal("Not", L.NewFunction(func(L *lua.LState) int {
		inner := L.CheckTable(1)
		if getString(inner, kindKey) != kindCond {
			L.ArgError(1, "Not expects a condition built with When")
			return 0
		}
		tbl := L.NewTable()
		inner.ForEach(func(k, v lua.LValue) { tbl.RawSet(k, v) })
		tbl.RawSetString("negate", lua.LBool(!getBool(inner, "negate", false)))
		L.Push(tbl)
		return 1
	}))
}
