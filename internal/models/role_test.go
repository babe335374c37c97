package models

import (
	"testing"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"Admin", RoleAdmin, true},
		{"admin", RoleAdmin, true},
		{" INSTRUCTOR ", RoleInstructor, true},
		{"student", RoleStudent, true},
		{"Stud", "", false},
		{"", "", false},
	}
	for _, tc := range tests {
		got, err := ParseRole(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, common.ErrorInvalidInput, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got)
	}
}

func TestRoleSet_AddRemoveIdempotent(t *testing.T) {
	s := NewRoleSet(RoleStudent)

	s2 := s.Add(RoleStudent)
	assert.Equal(t, s, s2, "adding a present role must not change the set")

	s3 := s.Remove(RoleAdmin)
	assert.Equal(t, s, s3, "removing an absent role must not change the set")

	s4 := s.Add(RoleInstructor).Remove(RoleStudent)
	assert.True(t, s4.Has(RoleInstructor))
	assert.False(t, s4.Has(RoleStudent))
	assert.Equal(t, 1, s4.Len())
}

func TestRoleSet_UnionDifference(t *testing.T) {
	a := NewRoleSet(RoleAdmin, RoleStudent)
	b := NewRoleSet(RoleStudent, RoleInstructor)

	assert.Equal(t, NewRoleSet(RoleAdmin, RoleStudent, RoleInstructor), a.Union(b))
	assert.Equal(t, NewRoleSet(RoleAdmin), a.Difference(b))
	assert.True(t, a.Difference(a).IsEmpty())
}

func TestRoleSet_StringIsCanonical(t *testing.T) {
	s := NewRoleSet(RoleInstructor, RoleAdmin)
	assert.Equal(t, "Admin,Instructor", s.String())
	assert.Equal(t, "", RoleSet(0).String())
	assert.Equal(t, []Role{RoleAdmin, RoleInstructor}, s.Slice())
}

func TestParseRoleSet(t *testing.T) {
	s, err := ParseRoleSet("Instructor, Admin,,")
	require.NoError(t, err)
	assert.Equal(t, NewRoleSet(RoleAdmin, RoleInstructor), s)

	empty, err := ParseRoleSet("")
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())

	_, err = ParseRoleSet("Admin,Adminx")
	assert.ErrorIs(t, err, common.ErrInvalidRole)
}

func TestRoleSet_HasIsExactToken(t *testing.T) {
	// "Admin" must never match a stored token that merely contains it.
	_, err := ParseRoleSet("SuperAdmin")
	assert.Error(t, err)

	s := NewRoleSet(RoleStudent)
	assert.False(t, s.Has(Role("Stud")))
	assert.False(t, s.Has(Role("")))
}
