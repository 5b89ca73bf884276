package patient

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/patients/internal/platform/apperr"
	"github.com/ehr/patients/internal/platform/auth"
	"github.com/ehr/patients/pkg/pagination"
)

const (
	IndexPath = "/user/index"
	FormPath  = "/admin/formPatients"
)

// IndexView is the model of the "patients" page.
type IndexView struct {
	Patients    []*Patient
	Pages       []int
	CurrentPage int
	Size        int
	Keyword     string
	Total       int
}

// FormView is the model of the "form-patients" and "edit-patient" pages.
// Page and Keyword carry the list position to return to after an edit.
type FormView struct {
	Form    Form
	Errors  apperr.FieldErrors
	Page    int
	Keyword string
}

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/", h.Home)

	user := g.Group("/user", auth.RequireRole())
	user.GET("/index", h.Index)

	admin := g.Group("/admin")
	admin.GET("/formPatients", h.FormPatients)
	admin.POST("/save", h.Save)
	admin.GET("/edit", h.Edit)
	admin.POST("/editPatient", h.EditPatient)
	admin.GET("/delete", h.Delete)
}

func (h *Handler) Home(c echo.Context) error {
	return c.Redirect(http.StatusFound, IndexPath)
}

func (h *Handler) Index(c echo.Context) error {
	params := pagination.FromContext(c)
	keyword := c.QueryParam("keyword")

	page, err := h.svc.Search(c.Request().Context(), keyword, params)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "patients", IndexView{
		Patients:    page.Items,
		Pages:       page.Numbers(),
		CurrentPage: page.Number,
		Size:        page.Size,
		Keyword:     keyword,
		Total:       page.Total,
	})
}

func (h *Handler) FormPatients(c echo.Context) error {
	if err := auth.Authorize(c, auth.RoleAdmin); err != nil {
		return err
	}
	return c.Render(http.StatusOK, "form-patients", FormView{})
}

func (h *Handler) Save(c echo.Context) error {
	if err := auth.Authorize(c, auth.RoleAdmin); err != nil {
		return err
	}
	f := bindForm(c)
	f.ID = ""
	if errs := Validate(f); !errs.Empty() {
		return c.Render(http.StatusOK, "form-patients", FormView{Form: f, Errors: errs})
	}

	if err := h.svc.Create(c.Request().Context(), f.Patient()); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, FormPath)
}

func (h *Handler) Edit(c echo.Context) error {
	if err := auth.Authorize(c, auth.RoleAdmin); err != nil {
		return err
	}
	id, err := parseID(c.QueryParam("id"))
	if err != nil {
		return err
	}
	p, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.Render(http.StatusOK, "edit-patient", FormView{
		Form:    FormOf(p),
		Page:    pageParam(c.QueryParam("page")),
		Keyword: c.QueryParam("keyword"),
	})
}

func (h *Handler) EditPatient(c echo.Context) error {
	if err := auth.Authorize(c, auth.RoleAdmin); err != nil {
		return err
	}
	f := bindForm(c)
	page := pageParam(c.FormValue("page"))
	keyword := c.FormValue("keyword")

	if _, err := parseID(f.ID); err != nil {
		return err
	}
	if errs := Validate(f); !errs.Empty() {
		return c.Render(http.StatusOK, "edit-patient", FormView{Form: f, Errors: errs, Page: page, Keyword: keyword})
	}

	if err := h.svc.Update(c.Request().Context(), f.Patient()); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, IndexURL(page, keyword))
}

func (h *Handler) Delete(c echo.Context) error {
	if err := auth.Authorize(c, auth.RoleAdmin); err != nil {
		return err
	}
	id, err := parseID(c.QueryParam("id"))
	if err != nil {
		return err
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return err
	}
	return c.Redirect(http.StatusFound, IndexURL(pageParam(c.QueryParam("page")), c.QueryParam("keyword")))
}

// IndexURL is the list page at the given position.
func IndexURL(page int, keyword string) string {
	return IndexPath + "?page=" + strconv.Itoa(page) + "&keyword=" + url.QueryEscape(keyword)
}

func bindForm(c echo.Context) Form {
	sick := c.FormValue("sick")
	return Form{
		ID:        c.FormValue("id"),
		Name:      c.FormValue("name"),
		BirthDate: c.FormValue("birthDate"),
		Sick:      sick == "true" || sick == "on",
		Score:     c.FormValue("score"),
	}
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid patient id %q", apperr.ErrValidation, raw)
	}
	return id, nil
}

func pageParam(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 0 {
		return 0
	}
	return page
}
