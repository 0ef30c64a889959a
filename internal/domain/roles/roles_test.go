package roles_test

import (
	"errors"
	"testing"

	"github.com/okian/skillsync/internal/domain/model"
	"github.com/okian/skillsync/internal/domain/roles"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCatalog(t *testing.T) {
	Convey("Given the default catalog", t, func() {
		c, err := roles.NewCatalog(roles.Default()...)
		So(err, ShouldBeNil)

		Convey("Then roles should be found regardless of case", func() {
			r, err := c.Get("  backend engineer ")
			So(err, ShouldBeNil)
			So(r.Name, ShouldEqual, "Backend Engineer")
			So(r.Requirements[0], ShouldResemble, model.RoleSkillRequirement{Name: "Go", RequiredLevel: 80})
		})

		Convey("Then names should be sorted", func() {
			So(c.Names(), ShouldResemble, []string{"Backend Engineer", "Data Engineer", "Frontend Engineer"})
		})

		Convey("When an unknown role is requested", func() {
			_, err := c.Get("Astronaut")

			Convey("Then it should report ErrUnknownRole", func() {
				So(errors.Is(err, roles.ErrUnknownRole), ShouldBeTrue)
			})
		})

		Convey("When a returned role is modified", func() {
			r, _ := c.Get("Data Engineer")
			r.Requirements[0].RequiredLevel = 1

			Convey("Then the catalog should be unaffected", func() {
				again, _ := c.Get("Data Engineer")
				So(again.Requirements[0].RequiredLevel, ShouldEqual, 85)
			})
		})

		Convey("When a role is replaced", func() {
			So(c.Put(model.Role{Name: "DATA ENGINEER", Requirements: []model.RoleSkillRequirement{{Name: "SQL", RequiredLevel: 50}}}), ShouldBeNil)

			Convey("Then the new requirements should win", func() {
				r, _ := c.Get("data engineer")
				So(r.Requirements, ShouldHaveLength, 1)
				So(c.Names(), ShouldHaveLength, 3)
			})
		})
	})

	Convey("Given invalid roles", t, func() {
		_, noName := roles.NewCatalog(model.Role{})
		_, badLevel := roles.NewCatalog(model.Role{Name: "X", Requirements: []model.RoleSkillRequirement{{Name: "Go", RequiredLevel: 120}}})
		_, noSkill := roles.NewCatalog(model.Role{Name: "X", Requirements: []model.RoleSkillRequirement{{RequiredLevel: 10}}})

		Convey("Then the catalog should refuse them", func() {
			So(errors.Is(noName, roles.ErrInvalidRole), ShouldBeTrue)
			So(errors.Is(badLevel, roles.ErrInvalidRole), ShouldBeTrue)
			So(errors.Is(noSkill, roles.ErrInvalidRole), ShouldBeTrue)
		})
	})
}
